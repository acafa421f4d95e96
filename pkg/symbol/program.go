package symbol

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hitzhangjie/retrodbg/pkg/config"
	"github.com/hitzhangjie/retrodbg/pkg/expr/address"
	"github.com/hitzhangjie/retrodbg/pkg/expr/condition"
)

// ErrInvalidAddressRange range end lies before its start
var ErrInvalidAddressRange = errors.New("invalid address range: end before start")

// AddressRange inclusive range of target addresses
type AddressRange struct {
	Start uint16
	End   uint16
}

// NewAddressRange returns the range [start, end], rejecting end < start.
func NewAddressRange(start, end uint16) (AddressRange, error) {
	if end < start {
		return AddressRange{}, fmt.Errorf("%w: $%04x-$%04x", ErrInvalidAddressRange, start, end)
	}
	return AddressRange{Start: start, End: end}, nil
}

// Valid reports whether End >= Start.
func (r AddressRange) Valid() bool { return r.End >= r.Start }

// Contains reports whether addr lies in r.
func (r AddressRange) Contains(addr uint16) bool { return addr >= r.Start && addr <= r.End }

func (r AddressRange) String() string {
	if r.Start == r.End {
		return fmt.Sprintf("$%04x", r.Start)
	}
	return fmt.Sprintf("$%04x-$%04x", r.Start, r.End)
}

// Program debug data of the currently assembled program: labels, the
// mapping of source lines to addresses and the debugger's memory banks.
// Each part may be absent; the corresponding accessor then returns nil.
//
// Program is safe for concurrent use.
type Program struct {
	cfg  config.Platform
	root string // project directory, source paths are stored relative to it

	mu     sync.RWMutex
	labels map[string]uint16
	banks  map[string]bool
	lines  map[string]map[int][]AddressRange // key=normalized file, val=map[lineno]ranges
	files  map[string]string                 // normalized file -> file as written
}

// NewProgram creates an empty program for the project in root.
func NewProgram(cfg config.Platform, root string) *Program {
	return &Program{cfg: cfg, root: root}
}

// Lookup implements address.LabelTable. A leading '.' is ignored.
func (p *Program) Lookup(name string) (uint16, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.labels[strings.TrimPrefix(name, ".")]
	return v, ok
}

// HasBank implements condition.BankTable
func (p *Program) HasBank(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.banks[strings.ToLower(name)]
}

// Labels returns p as a label table, or nil when no labels are loaded.
func (p *Program) Labels() address.LabelTable {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.labels == nil {
		return nil
	}
	return p
}

// Symbols returns the tables the condition validator checks against.
func (p *Program) Symbols() condition.Symbols {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := condition.Symbols{}
	if p.labels != nil {
		s.Labels = p
	}
	if p.banks != nil {
		s.Banks = p
	}
	return s
}

// SetBanks replaces the bank table, nil removes it.
func (p *Program) SetBanks(names []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if names == nil {
		p.banks = nil
		return
	}
	p.banks = make(map[string]bool, len(names))
	for _, n := range names {
		p.banks[strings.ToLower(n)] = true
	}
}

// AddLabel adds or replaces a label.
func (p *Program) AddLabel(name string, addr uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addLabel(name, addr)
}

func (p *Program) addLabel(name string, addr uint16) {
	if p.labels == nil {
		p.labels = make(map[string]uint16)
	}
	p.labels[strings.TrimPrefix(name, ".")] = addr
}

// AddLine maps the 0-based line of file to the address range r.
func (p *Program) AddLine(file string, line int, r AddressRange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addLine(file, line, r)
}

func (p *Program) addLine(file string, line int, r AddressRange) {
	file = p.relative(file)
	key := p.cfg.NormalizePath(file)
	if p.lines == nil {
		p.lines = make(map[string]map[int][]AddressRange)
		p.files = make(map[string]string)
	}
	entries, ok := p.lines[key]
	if !ok {
		entries = make(map[int][]AddressRange)
		p.lines[key] = entries
		p.files[key] = file
	}
	for _, have := range entries[line] {
		if have == r {
			return
		}
	}
	entries[line] = append(entries[line], r)
}

// Clear drops labels and line information, banks are kept since they
// come from the debugger rather than the assembler.
func (p *Program) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.labels = nil
	p.lines = nil
	p.files = nil
}

func (p *Program) relative(file string) string {
	if p.root != "" && filepath.IsAbs(file) {
		if rel, err := filepath.Rel(p.root, file); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(file)
}

// LineRanges returns the address ranges generated for the 0-based line of
// the project relative file, merged where they touch.
func (p *Program) LineRanges(file string, line int) []AddressRange {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := p.lines[p.cfg.NormalizePath(file)]
	if entries == nil || len(entries[line]) == 0 {
		return nil
	}
	return mergeRanges(entries[line])
}

// AddressToLine returns the source line whose code covers addr. When no
// range covers addr, the closest line starting below addr is returned.
func (p *Program) AddressToLine(addr uint16) (string, int, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	type candidate struct {
		start  uint16
		exists bool
		file   string
		line   int
	}
	var below candidate

	for key, entries := range p.lines {
		for line, ranges := range entries {
			for _, r := range ranges {
				if r.Contains(addr) {
					return p.files[key], line, true
				}
				if r.Start <= addr && (!below.exists || r.Start > below.start) {
					below = candidate{start: r.Start, exists: true, file: p.files[key], line: line}
				}
			}
		}
	}
	return below.file, below.line, below.exists
}

// LabelNames returns all label names sorted.
func (p *Program) LabelNames() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.labels))
	for n := range p.labels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func mergeRanges(in []AddressRange) []AddressRange {
	rs := make([]AddressRange, len(in))
	copy(rs, in)
	sort.Slice(rs, func(i, j int) bool { return rs[i].Start < rs[j].Start })

	out := rs[:1]
	for _, r := range rs[1:] {
		last := &out[len(out)-1]
		if uint32(r.Start) <= uint32(last.End)+1 {
			if r.End > last.End {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}
