package breakpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hitzhangjie/retrodbg/pkg/logger"
)

const (
	bindTypeLine    = "line"
	bindTypeUnbound = "unbound"
)

// ErrUnknownBind a persisted bind carries a $type this version does not know
var ErrUnknownBind = errors.New("unknown breakpoint bind type")

type fileRecord struct {
	Breakpoints []record `json:"breakpoints"`
}

type record struct {
	StopWhenHit bool       `json:"stopWhenHit"`
	IsEnabled   bool       `json:"isEnabled"`
	Mode        Mode       `json:"mode"`
	Condition   *string    `json:"condition"`
	Bind        bindRecord `json:"bind"`
}

type bindRecord struct {
	Bind
}

type lineRecord struct {
	Type       string `json:"$type"`
	FilePath   string `json:"filePath"`
	LineNumber int    `json:"lineNumber"`
}

type unboundRecord struct {
	Type         string  `json:"$type"`
	StartAddress string  `json:"startAddress"`
	EndAddress   *string `json:"endAddress"`
}

func (b bindRecord) MarshalJSON() ([]byte, error) {
	switch v := b.Bind.(type) {
	case LineBind:
		return json.Marshal(lineRecord{Type: bindTypeLine, FilePath: v.File, LineNumber: v.Line})
	case UnboundBind:
		return json.Marshal(unboundRecord{Type: bindTypeUnbound, StartAddress: v.Start, EndAddress: v.End})
	}
	return nil, fmt.Errorf("%w: %T", ErrUnknownBind, b.Bind)
}

func (b *bindRecord) UnmarshalJSON(data []byte) error {
	var head struct {
		Type string `json:"$type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Type {
	case bindTypeLine:
		var r lineRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		b.Bind = LineBind{File: r.FilePath, Line: r.LineNumber}
	case bindTypeUnbound:
		var r unboundRecord
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		b.Bind = UnboundBind{Start: r.StartAddress, End: r.EndAddress}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBind, head.Type)
	}
	return nil
}

func toRecord(bp *Breakpoint) record {
	r := record{
		StopWhenHit: bp.StopWhenHit,
		IsEnabled:   bp.Enabled,
		Mode:        bp.Mode,
		Bind:        bindRecord{bp.Bind},
	}
	if bp.Condition != "" {
		cond := bp.Condition
		r.Condition = &cond
	}
	return r
}

func (r record) breakpoint() (*Breakpoint, error) {
	var cond string
	if r.Condition != nil {
		cond = *r.Condition
	}
	bp, err := New(r.Bind.Bind, r.Mode, cond, nil)
	if err != nil {
		return nil, err
	}
	bp.StopWhenHit = r.StopWhenHit
	bp.Enabled = r.IsEnabled
	return bp, nil
}

// Encode writes bps in the breakpoint file format. Runtime state such as
// checkpoint ids and hit counts is not written.
func Encode(w io.Writer, bps []*Breakpoint) error {
	f := fileRecord{Breakpoints: make([]record, 0, len(bps))}
	for _, bp := range bps {
		f.Breakpoints = append(f.Breakpoints, toRecord(bp))
	}
	return encodeFile(w, f)
}

func encodeFile(w io.Writer, f fileRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

// Decode reads breakpoints written by Encode. Every returned breakpoint is
// disarmed and gets a fresh ID.
func Decode(r io.Reader) ([]*Breakpoint, error) {
	var f fileRecord
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode breakpoints: %w", err)
	}

	bps := make([]*Breakpoint, 0, len(f.Breakpoints))
	for i, rec := range f.Breakpoints {
		bp, err := rec.breakpoint()
		if err != nil {
			return nil, fmt.Errorf("breakpoint %d: %w", i, err)
		}
		bps = append(bps, bp)
	}
	return bps, nil
}

// LoadFile reads the breakpoint file at path. A missing file yields no
// breakpoints and no error.
func LoadFile(path string) ([]*Breakpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// writeFile replaces path with f. The data goes to a temporary file in the
// same directory first, so readers never see a partially written file.
func writeFile(path string, f fileRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := encodeFile(tmp, f); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// saver debounces writes of the breakpoint file. Each write carries the
// snapshot taken when it was scheduled; a snapshot older than the one last
// written is dropped.
type saver struct {
	path  string
	delay time.Duration

	mu      sync.Mutex
	seq     uint64
	timer   *time.Timer
	pending *pendingSave

	wmu     sync.Mutex
	written uint64
}

type pendingSave struct {
	seq  uint64
	file fileRecord
}

func newSaver(path string, delay time.Duration) *saver {
	return &saver{path: path, delay: delay}
}

// schedule queues f for writing once delay has passed without another
// call.
func (s *saver) schedule(f fileRecord) {
	if s.path == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.pending = &pendingSave{seq: s.seq, file: f}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.delay <= 0 {
		go s.flush()
		return
	}
	s.timer = time.AfterFunc(s.delay, func() { s.flush() })
}

// flush writes the pending snapshot, if any.
func (s *saver) flush() error {
	s.mu.Lock()
	snap := s.pending
	s.pending = nil
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if snap == nil {
		return nil
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if snap.seq <= s.written {
		return nil
	}
	if err := writeFile(s.path, snap.file); err != nil {
		logger.Logf(logTag, "save %s: %v", s.path, err)
		return err
	}
	s.written = snap.seq
	return nil
}

// save writes f right away, replacing any pending snapshot.
func (s *saver) save(f fileRecord) error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	s.seq++
	s.pending = &pendingSave{seq: s.seq, file: f}
	s.mu.Unlock()
	return s.flush()
}
