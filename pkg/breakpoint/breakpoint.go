// Package breakpoint keeps the catalog of logical breakpoints a user has set
// in a project and synchronizes it with the checkpoints of a running
// debugger session.
package breakpoint

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/atomic"

	"github.com/hitzhangjie/retrodbg/pkg/symbol"
	"github.com/hitzhangjie/retrodbg/pkg/target"
)

var (
	bpSeqNo = atomic.NewUint64(0)
)

var (
	ErrBreakpointNotExisted = errors.New("breakpoint not existed")
	ErrDuplicateLine        = errors.New("line already has a breakpoint")
	ErrStillArmed           = errors.New("breakpoints still hold checkpoints, disarm first")
	ErrNotDebugging         = errors.New("no debugger session")
	ErrClosed               = errors.New("catalog closed")
)

// Mode memory access a breakpoint traps on
type Mode int

// List of valid Mode values
const (
	Exec Mode = iota
	Load
	Store
)

func (m Mode) String() string {
	switch m {
	case Exec:
		return "Exec"
	case Load:
		return "Load"
	case Store:
		return "Store"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode parses the names produced by String, case-insensitively.
func ParseMode(s string) (Mode, error) {
	for _, m := range []Mode{Exec, Load, Store} {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return Exec, fmt.Errorf("unknown breakpoint mode %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	switch m {
	case Exec, Load, Store:
		return []byte(m.String()), nil
	}
	return nil, fmt.Errorf("unknown breakpoint mode %d", int(m))
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m Mode) operation() target.Operation {
	switch m {
	case Load:
		return target.OpLoad
	case Store:
		return target.OpStore
	}
	return target.OpExec
}

// ErrorKind why a breakpoint could not be armed
type ErrorKind int

// List of valid ErrorKind values
const (
	NoError ErrorKind = iota
	InvalidCondition
	NoAddressRange
	DebuggerFailure
)

func (k ErrorKind) String() string {
	switch k {
	case NoError:
		return "none"
	case InvalidCondition:
		return "invalid condition"
	case NoAddressRange:
		return "no address range"
	case DebuggerFailure:
		return "debugger failure"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Bind what a breakpoint is attached to, either a LineBind or an
// UnboundBind.
type Bind interface {
	isBind()
	String() string
}

// LineBind a source line, lines are 0-based and File is relative to the
// project directory
type LineBind struct {
	File string
	Line int
}

func (LineBind) isBind() {}

func (b LineBind) String() string {
	return fmt.Sprintf("%s:%d", b.File, b.Line+1)
}

// UnboundBind a raw address range given as address expressions. End is nil
// for a single address.
type UnboundBind struct {
	Start string
	End   *string
}

func (UnboundBind) isBind() {}

func (b UnboundBind) String() string {
	if b.End == nil {
		return b.Start
	}
	return b.Start + "-" + *b.End
}

// sameBind reports whether a and b attach to the same place.
func sameBind(a, b Bind) bool {
	switch x := a.(type) {
	case LineBind:
		y, ok := b.(LineBind)
		return ok && x == y
	case UnboundBind:
		y, ok := b.(UnboundBind)
		if !ok || x.Start != y.Start || (x.End == nil) != (y.End == nil) {
			return false
		}
		return x.End == nil || *x.End == *y.End
	}
	return false
}

// Breakpoint 断点信息
type Breakpoint struct {
	ID          uint64 // 断点编号, 不持久化
	StopWhenHit bool
	Enabled     bool
	Mode        Mode
	Bind        Bind
	Condition   string // "" means unconditional

	Ranges      []symbol.AddressRange
	Checkpoints []uint32 // remote ids, empty while disarmed

	IsHit       bool
	HitCount    uint32
	IgnoreCount uint32
	Error       ErrorKind
	ErrorText   string
}

// New creates an enabled breakpoint that stops when hit. Every range must
// satisfy End >= Start.
func New(bind Bind, mode Mode, condition string, ranges []symbol.AddressRange) (*Breakpoint, error) {
	if bind == nil {
		return nil, errors.New("breakpoint without bind")
	}
	if err := checkRanges(ranges); err != nil {
		return nil, err
	}
	return &Breakpoint{
		ID:          bpSeqNo.Inc(),
		StopWhenHit: true,
		Enabled:     true,
		Mode:        mode,
		Bind:        bind,
		Condition:   condition,
		Ranges:      append([]symbol.AddressRange(nil), ranges...),
	}, nil
}

func checkRanges(ranges []symbol.AddressRange) error {
	for _, r := range ranges {
		if !r.Valid() {
			return fmt.Errorf("%w: $%04x-$%04x", symbol.ErrInvalidAddressRange, r.Start, r.End)
		}
	}
	return nil
}

// Armed reports whether the breakpoint holds live checkpoints.
func (b *Breakpoint) Armed() bool {
	return len(b.Checkpoints) > 0
}

// Clone returns a deep copy of b.
func (b *Breakpoint) Clone() *Breakpoint {
	if b == nil {
		return nil
	}
	c := *b
	c.Ranges = append([]symbol.AddressRange(nil), b.Ranges...)
	c.Checkpoints = append([]uint32(nil), b.Checkpoints...)
	if u, ok := b.Bind.(UnboundBind); ok && u.End != nil {
		end := *u.End
		u.End = &end
		c.Bind = u
	}
	return &c
}

func (b *Breakpoint) String() string {
	s := fmt.Sprintf("%d %s %s", b.ID, b.Mode, b.Bind)
	if b.Condition != "" {
		s += " if " + b.Condition
	}
	return s
}

func (b *Breakpoint) setError(kind ErrorKind, text string) {
	b.Error = kind
	b.ErrorText = text
}

func (b *Breakpoint) clearError() {
	b.Error = NoError
	b.ErrorText = ""
}
