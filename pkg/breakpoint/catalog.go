package breakpoint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hitzhangjie/retrodbg/pkg/config"
	"github.com/hitzhangjie/retrodbg/pkg/logger"
	"github.com/hitzhangjie/retrodbg/pkg/symbol"
	"github.com/hitzhangjie/retrodbg/pkg/target"
)

const logTag = "breakpoint"

// EventKind what happened to a breakpoint
type EventKind int

// List of valid EventKind values
const (
	Added EventKind = iota
	Removed
	Updated
	Hit
)

func (k EventKind) String() string {
	switch k {
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Updated:
		return "updated"
	case Hit:
		return "hit"
	}
	return "unknown"
}

// Event a change subscribers are told about. Breakpoint is a snapshot.
type Event struct {
	Kind       EventKind
	Breakpoint *Breakpoint
}

type lineKey struct {
	file string
	line int
}

// Catalog the breakpoints of one project.
//
// All state is owned by a single goroutine; every exported method hands its
// work to that goroutine and waits for it, remote calls included. Values
// returned to callers are snapshots, breakpoints are addressed by ID.
type Catalog struct {
	cfg   config.Platform
	saver *saver

	once   sync.Once
	reqCh  chan func()
	stopCh chan struct{}
	stop   sync.Once

	// owned by the catalog goroutine
	list         []*Breakpoint
	byID         map[uint64]*Breakpoint
	byCheckpoint map[uint32]*Breakpoint
	byLine       map[lineKey]*Breakpoint
	byLineNumber map[int][]*Breakpoint
	orphans      map[uint32]struct{} // checkpoints we failed to delete
	session      Session
	debug        DebugInfo
	subscribers  map[int]func(Event)
	nextSub      int
}

// NewCatalog creates an empty catalog persisted to file. An empty file
// disables persistence.
func NewCatalog(cfg config.Platform, file string, debug DebugInfo) *Catalog {
	return &Catalog{
		cfg:          cfg,
		saver:        newSaver(file, cfg.PersistDelay),
		reqCh:        make(chan func()),
		stopCh:       make(chan struct{}),
		byID:         map[uint64]*Breakpoint{},
		byCheckpoint: map[uint32]*Breakpoint{},
		byLine:       map[lineKey]*Breakpoint{},
		byLineNumber: map[int][]*Breakpoint{},
		orphans:      map[uint32]struct{}{},
		debug:        debug,
		subscribers:  map[int]func(Event){},
	}
}

// Open creates a catalog and loads the breakpoints stored in file.
func Open(cfg config.Platform, file string, debug DebugInfo) (*Catalog, error) {
	c := NewCatalog(cfg, file, debug)
	bps, err := LoadFile(file)
	if err != nil {
		return nil, err
	}
	if err := c.Reset(bps); err != nil {
		return nil, err
	}
	return c, nil
}

// exec runs fn on the catalog goroutine and waits for it to finish.
func (c *Catalog) exec(fn func()) error {
	c.once.Do(func() {
		go func() {
			for {
				select {
				case reqFn := <-c.reqCh:
					reqFn()
				case <-c.stopCh:
					return
				}
			}
		}()
	})

	select {
	case <-c.stopCh:
		return ErrClosed
	default:
	}

	done := make(chan struct{})
	select {
	case c.reqCh <- func() { fn(); close(done) }:
	case <-c.stopCh:
		return ErrClosed
	}
	<-done
	return nil
}

// Close disarms every breakpoint if a session is connected, writes the
// breakpoint file and stops the catalog goroutine.
func (c *Catalog) Close(ctx context.Context) error {
	var errs []error
	err := c.exec(func() {
		if c.debugging() {
			if err := c.disarmAll(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		c.session = nil
		if err := c.saver.save(c.snapshot()); err != nil {
			errs = append(errs, err)
		}
	})
	if err != nil {
		return err
	}
	c.stop.Do(func() { close(c.stopCh) })
	return errors.Join(errs...)
}

// Flush writes a pending save immediately.
func (c *Catalog) Flush() error {
	return c.saver.flush()
}

// Subscribe registers fn for breakpoint events and returns a function that
// removes it. fn runs on the catalog goroutine and must not call back into
// the catalog.
func (c *Catalog) Subscribe(fn func(Event)) (cancel func()) {
	var id int
	c.exec(func() {
		id = c.nextSub
		c.nextSub++
		c.subscribers[id] = fn
	})
	return func() {
		c.exec(func() { delete(c.subscribers, id) })
	}
}

func (c *Catalog) emit(kind EventKind, bp *Breakpoint) {
	if len(c.subscribers) == 0 {
		return
	}
	ids := make([]int, 0, len(c.subscribers))
	for id := range c.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		c.subscribers[id](Event{Kind: kind, Breakpoint: bp.Clone()})
	}
}

// SetSession attaches the debugger session breakpoints are armed in. It
// does not arm anything, call RearmAll for that.
func (c *Catalog) SetSession(s Session) {
	c.exec(func() { c.session = s })
}

// SetDebugInfo replaces the program used to resolve lines, labels and
// banks.
func (c *Catalog) SetDebugInfo(d DebugInfo) {
	c.exec(func() { c.debug = d })
}

func (c *Catalog) debugging() bool {
	return c.session != nil && c.session.Connected()
}

// Breakpoints returns a snapshot of every breakpoint in insertion order.
func (c *Catalog) Breakpoints() []*Breakpoint {
	var out []*Breakpoint
	c.exec(func() {
		out = make([]*Breakpoint, 0, len(c.list))
		for _, bp := range c.list {
			out = append(out, bp.Clone())
		}
	})
	return out
}

// Get returns breakpoint id, or nil.
func (c *Catalog) Get(id uint64) *Breakpoint {
	var out *Breakpoint
	c.exec(func() { out = c.byID[id].Clone() })
	return out
}

// ByCheckpoint returns the breakpoint owning checkpoint id, or nil.
func (c *Catalog) ByCheckpoint(id uint32) *Breakpoint {
	var out *Breakpoint
	c.exec(func() { out = c.byCheckpoint[id].Clone() })
	return out
}

// LineBreakpoint returns the breakpoint on file:line, or nil.
func (c *Catalog) LineBreakpoint(file string, line int) *Breakpoint {
	var out *Breakpoint
	c.exec(func() { out = c.byLine[c.lineKey(file, line)].Clone() })
	return out
}

// BreakpointsForLine returns the line breakpoints on line in any file.
func (c *Catalog) BreakpointsForLine(line int) []*Breakpoint {
	var out []*Breakpoint
	c.exec(func() {
		for _, bp := range c.byLineNumber[line] {
			out = append(out, bp.Clone())
		}
	})
	return out
}

// Add inserts a new breakpoint and arms it when a session is connected.
// Ranges with End < Start are rejected with symbol.ErrInvalidAddressRange.
func (c *Catalog) Add(ctx context.Context, bind Bind, mode Mode, cond string, ranges []symbol.AddressRange) (*Breakpoint, error) {
	bp, err := New(bind, mode, cond, ranges)
	if err != nil {
		return nil, err
	}
	return c.AddBreakpoint(ctx, bp)
}

// AddBreakpoint inserts bp, which must not be armed, keeping its fields.
func (c *Catalog) AddBreakpoint(ctx context.Context, bp *Breakpoint) (*Breakpoint, error) {
	if err := checkRanges(bp.Ranges); err != nil {
		return nil, err
	}

	var (
		out *Breakpoint
		err error
	)
	execErr := c.exec(func() {
		bp = bp.Clone()
		bp.Checkpoints = nil
		if bp.ID == 0 {
			bp.ID = bpSeqNo.Inc()
		}
		if _, ok := c.byID[bp.ID]; ok {
			bp.ID = bpSeqNo.Inc()
		}
		if err = c.resolveUnbound(bp); err != nil {
			return
		}
		if lb, ok := bp.Bind.(LineBind); ok {
			if _, exists := c.byLine[c.lineKey(lb.File, lb.Line)]; exists {
				err = fmt.Errorf("%w: %s", ErrDuplicateLine, lb)
				return
			}
		}

		c.insert(bp)
		if c.debugging() {
			c.arm(ctx, bp)
		}
		c.emit(Added, bp)
		c.changed()
		out = bp.Clone()
	})
	if execErr != nil {
		return nil, execErr
	}
	return out, err
}

// AddLineBreakpoint adds an Exec breakpoint on file:line. When the line
// already has a breakpoint nothing changes and added is false.
func (c *Catalog) AddLineBreakpoint(ctx context.Context, file string, line int, cond string) (bp *Breakpoint, added bool, err error) {
	if existing := c.LineBreakpoint(file, line); existing != nil {
		return existing, false, nil
	}
	bp, err = c.Add(ctx, LineBind{File: file, Line: line}, Exec, cond, nil)
	if errors.Is(err, ErrDuplicateLine) {
		return c.LineBreakpoint(file, line), false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return bp, true, nil
}

// Remove deletes the checkpoints of breakpoint id and drops it from the
// catalog. When a delete fails and force is false the breakpoint stays,
// keeps the checkpoints that could not be deleted and is flagged with
// DebuggerFailure; removed is false in that case.
func (c *Catalog) Remove(ctx context.Context, id uint64, force bool) (removed bool, err error) {
	execErr := c.exec(func() {
		bp, ok := c.byID[id]
		if !ok {
			err = ErrBreakpointNotExisted
			return
		}

		var (
			kept []uint32
			errs []error
		)
		for _, cp := range bp.Checkpoints {
			if e := c.deleteCheckpoint(ctx, cp); e != nil {
				logger.Logf(logTag, "remove breakpoint %d: delete checkpoint %d: %v", bp.ID, cp, e)
				errs = append(errs, fmt.Errorf("checkpoint %d: %w", cp, e))
				kept = append(kept, cp)
				continue
			}
			delete(c.byCheckpoint, cp)
		}
		err = errors.Join(errs...)

		if len(kept) > 0 && !force {
			bp.Checkpoints = kept
			bp.setError(DebuggerFailure, fmt.Sprintf("could not delete %d of its checkpoints", len(kept)))
			c.emit(Updated, bp)
			return
		}

		for _, cp := range kept {
			delete(c.byCheckpoint, cp)
			c.orphans[cp] = struct{}{}
		}
		bp.Checkpoints = nil
		c.unlink(bp)
		c.emit(Removed, bp)
		c.changed()
		removed = true
	})
	if execErr != nil {
		return false, execErr
	}
	return removed, err
}

// ToggleEnabled flips the enabled flag of breakpoint id. When armed, every
// checkpoint is toggled and the flag only changes if all of them succeed.
func (c *Catalog) ToggleEnabled(ctx context.Context, id uint64) (*Breakpoint, error) {
	var (
		out *Breakpoint
		err error
	)
	execErr := c.exec(func() {
		bp, ok := c.byID[id]
		if !ok {
			err = ErrBreakpointNotExisted
			return
		}

		want := !bp.Enabled
		var errs []error
		for _, cp := range bp.Checkpoints {
			if !c.debugging() {
				errs = append(errs, ErrNotDebugging)
				break
			}
			if e := c.session.ToggleCheckpoint(ctx, cp, want); e != nil {
				logger.Logf(logTag, "toggle breakpoint %d: checkpoint %d: %v", bp.ID, cp, e)
				errs = append(errs, fmt.Errorf("checkpoint %d: %w", cp, e))
			}
		}
		if len(errs) > 0 {
			err = errors.Join(errs...)
			out = bp.Clone()
			return
		}

		bp.Enabled = want
		c.emit(Updated, bp)
		c.changed()
		out = bp.Clone()
	})
	if execErr != nil {
		return nil, execErr
	}
	return out, err
}

// Update copies the user editable fields of edited onto breakpoint id. The
// old checkpoints are deleted first and the breakpoint is armed again when
// a session is connected. The result is persisted in any case.
func (c *Catalog) Update(ctx context.Context, id uint64, edited *Breakpoint) (*Breakpoint, error) {
	if err := checkRanges(edited.Ranges); err != nil {
		return nil, err
	}

	var (
		out *Breakpoint
		err error
	)
	execErr := c.exec(func() {
		bp, ok := c.byID[id]
		if !ok {
			err = ErrBreakpointNotExisted
			return
		}
		if lb, ok := edited.Bind.(LineBind); ok {
			if other := c.byLine[c.lineKey(lb.File, lb.Line)]; other != nil && other != bp {
				err = fmt.Errorf("%w: %s", ErrDuplicateLine, lb)
				return
			}
		}

		e := edited.Clone()
		if !sameBind(e.Bind, bp.Bind) {
			// the old ranges belong to the old bind
			e.Ranges = nil
		}
		if err = c.resolveUnbound(e); err != nil {
			return
		}

		for _, cp := range bp.Checkpoints {
			if derr := c.deleteCheckpoint(ctx, cp); derr != nil {
				logger.Logf(logTag, "update breakpoint %d: delete checkpoint %d: %v", bp.ID, cp, derr)
				c.orphans[cp] = struct{}{}
			}
			delete(c.byCheckpoint, cp)
		}
		bp.Checkpoints = nil

		c.unlinkLine(bp)
		bp.StopWhenHit = e.StopWhenHit
		bp.Enabled = e.Enabled
		bp.Mode = e.Mode
		bp.Bind = e.Bind
		bp.Condition = e.Condition
		bp.Ranges = e.Ranges
		bp.clearError()
		c.linkLine(bp)

		if c.debugging() {
			c.arm(ctx, bp)
		}
		c.emit(Updated, bp)
		c.changed()
		out = bp.Clone()
	})
	if execErr != nil {
		return nil, execErr
	}
	return out, err
}

// RearmAll arms every breakpoint in the connected session. No breakpoint
// may hold checkpoints when it is called. Failures are recorded on the
// breakpoints; the number of armed breakpoints is returned.
func (c *Catalog) RearmAll(ctx context.Context) (int, error) {
	var (
		armed int
		err   error
	)
	execErr := c.exec(func() {
		if !c.debugging() {
			err = ErrNotDebugging
			return
		}
		for _, bp := range c.list {
			if bp.Armed() {
				err = fmt.Errorf("%w: breakpoint %d", ErrStillArmed, bp.ID)
				return
			}
		}

		for _, bp := range c.list {
			if c.arm(ctx, bp) {
				armed++
			}
			c.emit(Updated, bp)
		}
		// one save for the whole loop
		c.changed()
	})
	if execErr != nil {
		return 0, execErr
	}
	return armed, err
}

// DisarmAll deletes the remote checkpoints the catalog owns, leaving any
// other checkpoint in the session alone, and empties the checkpoint index.
// Calling it while nothing is armed issues no remote calls.
func (c *Catalog) DisarmAll(ctx context.Context) error {
	var err error
	execErr := c.exec(func() { err = c.disarmAll(ctx) })
	if execErr != nil {
		return execErr
	}
	return err
}

func (c *Catalog) disarmAll(ctx context.Context) error {
	if len(c.byCheckpoint) == 0 && len(c.orphans) == 0 {
		return nil
	}
	if !c.debugging() {
		c.forgetCheckpoints()
		return nil
	}

	remote, err := c.session.ListCheckpoints(ctx)
	if err != nil {
		logger.Logf(logTag, "disarm: list checkpoints: %v", err)
		return fmt.Errorf("list checkpoints: %w", err)
	}

	var errs []error
	for _, info := range remote {
		_, owned := c.byCheckpoint[info.ID]
		_, orphan := c.orphans[info.ID]
		if !owned && !orphan {
			continue
		}
		if e := c.session.DeleteCheckpoint(ctx, info.ID); e != nil {
			logger.Logf(logTag, "disarm: delete checkpoint %d: %v", info.ID, e)
			errs = append(errs, fmt.Errorf("checkpoint %d: %w", info.ID, e))
			c.orphans[info.ID] = struct{}{}
			continue
		}
		delete(c.orphans, info.ID)
	}

	// orphans that are gone remotely need no further attention
	present := make(map[uint32]bool, len(remote))
	for _, info := range remote {
		present[info.ID] = true
	}
	for id := range c.orphans {
		if !present[id] {
			delete(c.orphans, id)
		}
	}

	for _, bp := range c.list {
		if bp.Armed() {
			bp.Checkpoints = nil
			bp.IsHit = false
			c.emit(Updated, bp)
		}
	}
	c.byCheckpoint = map[uint32]*Breakpoint{}
	return errors.Join(errs...)
}

// Disconnected forgets every checkpoint without talking to the session,
// for when the connection to the debugger is gone.
func (c *Catalog) Disconnected() {
	c.exec(func() {
		c.session = nil
		c.forgetCheckpoints()
		c.orphans = map[uint32]struct{}{}
	})
}

func (c *Catalog) forgetCheckpoints() {
	for _, bp := range c.list {
		if bp.Armed() || bp.IsHit {
			bp.Checkpoints = nil
			bp.IsHit = false
			c.emit(Updated, bp)
		}
	}
	c.byCheckpoint = map[uint32]*Breakpoint{}
}

// HandleCheckpointHit reconciles a hit reported by the session. Unknown
// checkpoints are logged and dropped.
func (c *Catalog) HandleCheckpointHit(info target.Checkpoint) {
	c.exec(func() {
		bp, ok := c.byCheckpoint[info.ID]
		if !ok {
			logger.Logf(logTag, "hit on unknown checkpoint %d", info.ID)
			return
		}
		enabled := bp.Enabled
		bp.IsHit = info.CurrentlyHit
		bp.Enabled = info.Enabled
		bp.HitCount = info.HitCount
		bp.IgnoreCount = info.IgnoreCount
		c.emit(Hit, bp)
		if enabled != bp.Enabled {
			c.changed()
		}
	})
}

// ClearHits resets the hit flag of every breakpoint, for when the target
// resumes.
func (c *Catalog) ClearHits() {
	c.exec(func() {
		for _, bp := range c.list {
			if bp.IsHit {
				bp.IsHit = false
				c.emit(Updated, bp)
			}
		}
	})
}

// HandleEvent applies a session event to the catalog.
func (c *Catalog) HandleEvent(ev target.Event) {
	switch ev.Kind {
	case target.CheckpointHit:
		c.HandleCheckpointHit(ev.Checkpoint)
	case target.Resumed:
		c.ClearHits()
	case target.Disconnected:
		c.Disconnected()
	}
}

// Reset replaces all breakpoints with bps, as when another project is
// opened. Checkpoints of the old breakpoints are forgotten, not deleted;
// disarm first when a session is connected.
func (c *Catalog) Reset(bps []*Breakpoint) error {
	for _, bp := range bps {
		if err := checkRanges(bp.Ranges); err != nil {
			return err
		}
	}

	return c.exec(func() {
		for _, bp := range c.list {
			c.emit(Removed, bp)
		}
		c.list = nil
		c.byID = map[uint64]*Breakpoint{}
		c.byCheckpoint = map[uint32]*Breakpoint{}
		c.byLine = map[lineKey]*Breakpoint{}
		c.byLineNumber = map[int][]*Breakpoint{}
		c.orphans = map[uint32]struct{}{}

		for _, in := range bps {
			bp := in.Clone()
			bp.Checkpoints = nil
			if _, ok := c.byID[bp.ID]; ok || bp.ID == 0 {
				bp.ID = bpSeqNo.Inc()
			}
			if lb, ok := bp.Bind.(LineBind); ok {
				if _, exists := c.byLine[c.lineKey(lb.File, lb.Line)]; exists {
					logger.Logf(logTag, "dropping duplicate breakpoint on %s", lb)
					continue
				}
			}
			if rerr := c.resolveUnbound(bp); rerr != nil {
				bp.setError(NoAddressRange, rerr.Error())
			}
			c.insert(bp)
			c.emit(Added, bp)
		}
	})
}

// Save writes the breakpoint file now.
func (c *Catalog) Save() error {
	var err error
	execErr := c.exec(func() { err = c.saver.save(c.snapshot()) })
	if execErr != nil {
		return execErr
	}
	return err
}

func (c *Catalog) snapshot() fileRecord {
	f := fileRecord{Breakpoints: make([]record, 0, len(c.list))}
	for _, bp := range c.list {
		f.Breakpoints = append(f.Breakpoints, toRecord(bp))
	}
	return f
}

// changed schedules a save, unless saves are held back.
func (c *Catalog) changed() {
	c.saver.schedule(c.snapshot())
}

func (c *Catalog) lineKey(file string, line int) lineKey {
	return lineKey{file: c.cfg.NormalizePath(file), line: line}
}

func (c *Catalog) insert(bp *Breakpoint) {
	c.list = append(c.list, bp)
	c.byID[bp.ID] = bp
	for _, cp := range bp.Checkpoints {
		c.byCheckpoint[cp] = bp
	}
	c.linkLine(bp)
}

func (c *Catalog) unlink(bp *Breakpoint) {
	for i, v := range c.list {
		if v == bp {
			c.list = append(c.list[:i], c.list[i+1:]...)
			break
		}
	}
	delete(c.byID, bp.ID)
	for _, cp := range bp.Checkpoints {
		delete(c.byCheckpoint, cp)
	}
	c.unlinkLine(bp)
}

func (c *Catalog) linkLine(bp *Breakpoint) {
	lb, ok := bp.Bind.(LineBind)
	if !ok {
		return
	}
	c.byLine[c.lineKey(lb.File, lb.Line)] = bp
	c.byLineNumber[lb.Line] = append(c.byLineNumber[lb.Line], bp)
}

func (c *Catalog) unlinkLine(bp *Breakpoint) {
	lb, ok := bp.Bind.(LineBind)
	if !ok {
		return
	}
	key := c.lineKey(lb.File, lb.Line)
	if c.byLine[key] == bp {
		delete(c.byLine, key)
	}
	bps := c.byLineNumber[lb.Line]
	for i, v := range bps {
		if v == bp {
			bps = append(bps[:i:i], bps[i+1:]...)
			break
		}
	}
	if len(bps) == 0 {
		delete(c.byLineNumber, lb.Line)
	} else {
		c.byLineNumber[lb.Line] = bps
	}
}

func (c *Catalog) deleteCheckpoint(ctx context.Context, id uint32) error {
	if !c.debugging() {
		return ErrNotDebugging
	}
	return c.session.DeleteCheckpoint(ctx, id)
}
