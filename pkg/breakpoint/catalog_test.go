package breakpoint

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitzhangjie/retrodbg/pkg/config"
	"github.com/hitzhangjie/retrodbg/pkg/expr/address"
	"github.com/hitzhangjie/retrodbg/pkg/expr/condition"
	"github.com/hitzhangjie/retrodbg/pkg/symbol"
	"github.com/hitzhangjie/retrodbg/pkg/target"
)

var errRemote = errors.New("remote failure")

type fakeSession struct {
	mu          sync.Mutex
	connected   bool
	next        uint32
	checkpoints map[uint32]target.Checkpoint
	conditions  map[uint32]string

	setCalls      int
	failSetOn     int // fail the n-th SetCheckpoint call, 0 never
	failDelete    map[uint32]bool
	failToggle    map[uint32]bool
	failCondition bool

	calls []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		connected:   true,
		next:        1,
		checkpoints: map[uint32]target.Checkpoint{},
		conditions:  map[uint32]string{},
		failDelete:  map[uint32]bool{},
		failToggle:  map[uint32]bool{},
	}
}

func (s *fakeSession) record(format string, args ...interface{}) {
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *fakeSession) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *fakeSession) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *fakeSession) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeSession) SetCheckpoint(_ context.Context, req target.CheckpointRequest) (target.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("set $%04x-$%04x", req.Start, req.End)
	s.setCalls++
	if s.setCalls == s.failSetOn {
		return target.Checkpoint{}, errRemote
	}
	cp := target.Checkpoint{
		ID:          s.next,
		Start:       req.Start,
		End:         req.End,
		StopWhenHit: req.StopWhenHit,
		Enabled:     req.Enabled,
		Op:          req.Op,
	}
	s.next++
	s.checkpoints[cp.ID] = cp
	return cp, nil
}

func (s *fakeSession) SetCondition(_ context.Context, id uint32, cond string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("cond %d %s", id, cond)
	if s.failCondition {
		return &target.MonitorError{Command: 0x22, Code: 0x8f}
	}
	s.conditions[id] = cond
	return nil
}

func (s *fakeSession) DeleteCheckpoint(_ context.Context, id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("delete %d", id)
	if s.failDelete[id] {
		return errRemote
	}
	if _, ok := s.checkpoints[id]; !ok {
		return &target.MonitorError{Command: 0x13, Code: 0x01}
	}
	delete(s.checkpoints, id)
	return nil
}

func (s *fakeSession) ToggleCheckpoint(_ context.Context, id uint32, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("toggle %d %v", id, enabled)
	if s.failToggle[id] {
		return errRemote
	}
	cp := s.checkpoints[id]
	cp.Enabled = enabled
	s.checkpoints[id] = cp
	return nil
}

func (s *fakeSession) ListCheckpoints(context.Context) ([]target.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("list")
	var out []target.Checkpoint
	for _, cp := range s.checkpoints {
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeSession) has(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.checkpoints[id]
	return ok
}

type fakeDebug struct {
	lines  map[lineKey][]symbol.AddressRange
	labels address.Labels
}

func (d *fakeDebug) LineRanges(file string, line int) []symbol.AddressRange {
	return d.lines[lineKey{file, line}]
}

func (d *fakeDebug) Labels() address.LabelTable {
	if d.labels == nil {
		return nil
	}
	return d.labels
}

func (d *fakeDebug) Symbols() condition.Symbols {
	return condition.Symbols{Labels: d.Labels()}
}

func newDebug() *fakeDebug {
	return &fakeDebug{
		lines: map[lineKey][]symbol.AddressRange{
			{"src/main.asm", 3}: {{Start: 0x0810, End: 0x0811}},
			{"src/main.asm", 4}: {{Start: 0x0812, End: 0x0817}, {Start: 0x0900, End: 0x0902}},
		},
		labels: address.Labels{"start": 0x080d, "screen": 0x0400},
	}
}

func newTestCatalog(t *testing.T, s Session) *Catalog {
	cfg := config.Default()
	cfg.CaseInsensitivePaths = false
	cfg.PersistDelay = 0
	c := NewCatalog(cfg, "", newDebug())
	if s != nil {
		c.SetSession(s)
	}
	t.Cleanup(func() { c.Close(context.Background()) })
	return c
}

func strp(s string) *string { return &s }

func TestAddRejectsInvalidRange(t *testing.T) {
	c := newTestCatalog(t, nil)
	ctx := context.Background()

	_, err := c.Add(ctx, UnboundBind{Start: "$1001"}, Exec, "", []symbol.AddressRange{{Start: 0x1001, End: 0x1000}})
	assert.True(t, errors.Is(err, symbol.ErrInvalidAddressRange))

	_, err = c.Add(ctx, UnboundBind{Start: "$2000", End: strp("$1000")}, Store, "", nil)
	assert.True(t, errors.Is(err, symbol.ErrInvalidAddressRange))

	assert.Empty(t, c.Breakpoints())

	bp, err := c.Add(ctx, UnboundBind{Start: "screen", End: strp("screen+999")}, Store, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []symbol.AddressRange{{Start: 0x0400, End: 0x07e7}}, bp.Ranges)
}

func TestLineBreakpointUnique(t *testing.T) {
	c := newTestCatalog(t, nil)
	ctx := context.Background()

	bp, added, err := c.AddLineBreakpoint(ctx, "src/main.asm", 3, "")
	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, Exec, bp.Mode)
	assert.True(t, bp.StopWhenHit)
	assert.True(t, bp.Enabled)

	again, added, err := c.AddLineBreakpoint(ctx, "./src/main.asm", 3, "A == $10")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, bp.ID, again.ID)
	assert.Equal(t, "", again.Condition)

	_, err = c.Add(ctx, LineBind{File: "src/main.asm", Line: 3}, Load, "", nil)
	assert.True(t, errors.Is(err, ErrDuplicateLine))

	other, _, err := c.AddLineBreakpoint(ctx, "src/irq.asm", 3, "")
	require.NoError(t, err)
	edited := other.Clone()
	edited.Bind = LineBind{File: "src/main.asm", Line: 3}
	_, err = c.Update(ctx, other.ID, edited)
	assert.True(t, errors.Is(err, ErrDuplicateLine))

	assert.Len(t, c.Breakpoints(), 2)
	assert.Len(t, c.BreakpointsForLine(3), 2)
	assert.Empty(t, c.BreakpointsForLine(4))
	assert.Nil(t, c.LineBreakpoint("src/main.asm", 4))
	assert.Equal(t, other.ID, c.LineBreakpoint("src/irq.asm", 3).ID)
}

func TestLineKeyCaseInsensitive(t *testing.T) {
	cfg := config.Default()
	cfg.CaseInsensitivePaths = true
	c := NewCatalog(cfg, "", nil)
	defer c.Close(context.Background())

	_, added, err := c.AddLineBreakpoint(context.Background(), "Src/Main.asm", 1, "")
	require.NoError(t, err)
	assert.True(t, added)
	_, added, err = c.AddLineBreakpoint(context.Background(), "src/main.ASM", 1, "")
	require.NoError(t, err)
	assert.False(t, added)
}

func TestArmOnAdd(t *testing.T) {
	s := newFakeSession()
	c := newTestCatalog(t, s)
	ctx := context.Background()

	bp, err := c.Add(ctx, LineBind{File: "src/main.asm", Line: 4}, Exec, "A == $10", nil)
	require.NoError(t, err)
	assert.Equal(t, NoError, bp.Error)
	assert.Equal(t, []uint32{1, 2}, bp.Checkpoints)
	assert.Equal(t, []symbol.AddressRange{{Start: 0x0812, End: 0x0817}, {Start: 0x0900, End: 0x0902}}, bp.Ranges)
	assert.Equal(t, []string{
		"set $0812-$0817",
		"cond 1 A == $10",
		"set $0900-$0902",
		"cond 2 A == $10",
	}, s.Calls())

	assert.Equal(t, bp.ID, c.ByCheckpoint(1).ID)
	assert.Equal(t, bp.ID, c.ByCheckpoint(2).ID)
	assert.Nil(t, c.ByCheckpoint(3))
}

func TestArmErrors(t *testing.T) {
	type arg struct {
		name     string
		bind     Bind
		cond     string
		setup    func(s *fakeSession)
		wantErr  ErrorKind
		wantLeft int // checkpoints left in the session
	}
	args := []arg{
		{name: "no line info", bind: LineBind{File: "src/main.asm", Line: 99}, wantErr: NoAddressRange},
		{name: "unknown label", bind: UnboundBind{Start: "nowhere"}, wantErr: NoAddressRange},
		{name: "bad register", bind: LineBind{File: "src/main.asm", Line: 3}, cond: "Z == $5", wantErr: InvalidCondition},
		{name: "unknown label in condition", bind: LineBind{File: "src/main.asm", Line: 3}, cond: ".nolabel == $5", wantErr: InvalidCondition},
		{
			name:    "second checkpoint fails",
			bind:    LineBind{File: "src/main.asm", Line: 4},
			setup:   func(s *fakeSession) { s.failSetOn = 2 },
			wantErr: DebuggerFailure,
		},
		{
			name:    "monitor rejects condition",
			bind:    LineBind{File: "src/main.asm", Line: 4},
			cond:    "A == $10",
			setup:   func(s *fakeSession) { s.failCondition = true },
			wantErr: InvalidCondition,
		},
		{
			name: "rollback delete fails",
			bind: LineBind{File: "src/main.asm", Line: 4},
			setup: func(s *fakeSession) {
				s.failSetOn = 2
				s.failDelete[1] = true
			},
			wantErr:  DebuggerFailure,
			wantLeft: 1,
		},
	}

	for _, a := range args {
		t.Run(a.name, func(t *testing.T) {
			s := newFakeSession()
			if a.setup != nil {
				a.setup(s)
			}
			c := newTestCatalog(t, s)

			bp, err := c.Add(context.Background(), a.bind, Exec, a.cond, nil)
			require.NoError(t, err)
			assert.Equal(t, a.wantErr, bp.Error)
			assert.NotEmpty(t, bp.ErrorText)
			assert.False(t, bp.Armed())
			assert.Len(t, s.checkpoints, a.wantLeft)
		})
	}
}

func TestInvalidConditionNeverReachesSession(t *testing.T) {
	s := newFakeSession()
	c := newTestCatalog(t, s)

	bp, err := c.Add(context.Background(), LineBind{File: "src/main.asm", Line: 3}, Exec, "A ==", nil)
	require.NoError(t, err)
	assert.Equal(t, InvalidCondition, bp.Error)
	assert.Empty(t, s.Calls())
}

func TestRemoveAllOrNothing(t *testing.T) {
	s := newFakeSession()
	c := newTestCatalog(t, s)
	ctx := context.Background()

	bp, err := c.Add(ctx, LineBind{File: "src/main.asm", Line: 4}, Exec, "", nil)
	require.NoError(t, err)
	require.Equal(t, []uint32{1, 2}, bp.Checkpoints)

	s.failDelete[2] = true
	removed, err := c.Remove(ctx, bp.ID, false)
	assert.Error(t, err)
	assert.False(t, removed)

	left := c.Get(bp.ID)
	require.NotNil(t, left)
	assert.Equal(t, []uint32{2}, left.Checkpoints)
	assert.Equal(t, DebuggerFailure, left.Error)
	assert.Nil(t, c.ByCheckpoint(1))
	assert.Equal(t, bp.ID, c.ByCheckpoint(2).ID)
	assert.NotNil(t, c.LineBreakpoint("src/main.asm", 4))

	removed, err = c.Remove(ctx, bp.ID, true)
	assert.Error(t, err)
	assert.True(t, removed)
	assert.Nil(t, c.Get(bp.ID))
	assert.Nil(t, c.ByCheckpoint(2))
	assert.Nil(t, c.LineBreakpoint("src/main.asm", 4))
	assert.Empty(t, c.BreakpointsForLine(4))

	_, err = c.Remove(ctx, bp.ID, false)
	assert.Equal(t, ErrBreakpointNotExisted, err)

	// the forced leftover is cleaned up by the next disarm
	s.failDelete[2] = false
	s.ResetCalls()
	require.NoError(t, c.DisarmAll(ctx))
	assert.Equal(t, []string{"list", "delete 2"}, s.Calls())
	assert.False(t, s.has(2))
}

func TestRemoveDisarmed(t *testing.T) {
	c := newTestCatalog(t, nil)
	ctx := context.Background()

	bp, err := c.Add(ctx, UnboundBind{Start: "$c000"}, Exec, "", nil)
	require.NoError(t, err)
	removed, err := c.Remove(ctx, bp.ID, false)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Empty(t, c.Breakpoints())
}

func TestToggleAllOrNothing(t *testing.T) {
	s := newFakeSession()
	c := newTestCatalog(t, s)
	ctx := context.Background()

	bp, err := c.Add(ctx, LineBind{File: "src/main.asm", Line: 4}, Exec, "", nil)
	require.NoError(t, err)

	s.failToggle[2] = true
	got, err := c.ToggleEnabled(ctx, bp.ID)
	assert.Error(t, err)
	assert.True(t, got.Enabled)
	assert.True(t, c.Get(bp.ID).Enabled)
	assert.Equal(t, []uint32{1, 2}, c.Get(bp.ID).Checkpoints)

	s.failToggle[2] = false
	got, err = c.ToggleEnabled(ctx, bp.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.False(t, s.checkpoints[1].Enabled)
	assert.False(t, s.checkpoints[2].Enabled)
}

func TestToggleDisarmed(t *testing.T) {
	c := newTestCatalog(t, nil)
	bp, _, err := c.AddLineBreakpoint(context.Background(), "src/main.asm", 3, "")
	require.NoError(t, err)

	got, err := c.ToggleEnabled(context.Background(), bp.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	_, err = c.ToggleEnabled(context.Background(), 0)
	assert.Equal(t, ErrBreakpointNotExisted, err)
}

func TestDisarmAll(t *testing.T) {
	s := newFakeSession()
	c := newTestCatalog(t, s)
	ctx := context.Background()

	_, err := c.Add(ctx, LineBind{File: "src/main.asm", Line: 3}, Exec, "", nil)
	require.NoError(t, err)
	_, err = c.Add(ctx, LineBind{File: "src/main.asm", Line: 4}, Exec, "", nil)
	require.NoError(t, err)

	// a checkpoint the catalog does not own
	foreign, err := s.SetCheckpoint(ctx, target.CheckpointRequest{Start: 0xd020, End: 0xd020, Op: target.OpStore})
	require.NoError(t, err)

	s.ResetCalls()
	require.NoError(t, c.DisarmAll(ctx))
	assert.Equal(t, []string{"list", "delete 1", "delete 2", "delete 3"}, s.Calls())
	assert.True(t, s.has(foreign.ID))
	for _, bp := range c.Breakpoints() {
		assert.False(t, bp.Armed())
	}
	assert.Nil(t, c.ByCheckpoint(1))

	s.ResetCalls()
	require.NoError(t, c.DisarmAll(ctx))
	assert.Empty(t, s.Calls())
}

func TestDisarmAllRetriesFailedDeletes(t *testing.T) {
	s := newFakeSession()
	c := newTestCatalog(t, s)
	ctx := context.Background()

	_, err := c.Add(ctx, LineBind{File: "src/main.asm", Line: 4}, Exec, "", nil)
	require.NoError(t, err)

	s.failDelete[1] = true
	assert.Error(t, c.DisarmAll(ctx))
	assert.True(t, s.has(1))
	assert.False(t, s.has(2))

	s.failDelete[1] = false
	s.ResetCalls()
	require.NoError(t, c.DisarmAll(ctx))
	assert.Equal(t, []string{"list", "delete 1"}, s.Calls())

	s.ResetCalls()
	require.NoError(t, c.DisarmAll(ctx))
	assert.Empty(t, s.Calls())
}

func TestRearmAll(t *testing.T) {
	s := newFakeSession()
	c := newTestCatalog(t, nil)
	ctx := context.Background()

	_, err := c.RearmAll(ctx)
	assert.Equal(t, ErrNotDebugging, err)

	_, err = c.Add(ctx, LineBind{File: "src/main.asm", Line: 3}, Exec, "", nil)
	require.NoError(t, err)
	_, err = c.Add(ctx, LineBind{File: "src/main.asm", Line: 4}, Store, "", nil)
	require.NoError(t, err)
	bad, err := c.Add(ctx, UnboundBind{Start: "nowhere"}, Exec, "", nil)
	require.NoError(t, err)

	c.SetSession(s)
	armed, err := c.RearmAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, armed)
	assert.Equal(t, NoAddressRange, c.Get(bad.ID).Error)
	assert.Len(t, s.checkpoints, 3)
	assert.Equal(t, target.OpStore, s.checkpoints[2].Op)

	_, err = c.RearmAll(ctx)
	assert.True(t, errors.Is(err, ErrStillArmed))
	assert.Len(t, s.checkpoints, 3)

	require.NoError(t, c.DisarmAll(ctx))
	armed, err = c.RearmAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, armed)
}

func TestUpdateKeepsIdentity(t *testing.T) {
	s := newFakeSession()
	c := newTestCatalog(t, s)
	ctx := context.Background()

	bp, err := c.Add(ctx, LineBind{File: "src/main.asm", Line: 3}, Exec, "", nil)
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, bp.Checkpoints)

	edited := bp.Clone()
	edited.Condition = "X != $00"
	edited.Bind = LineBind{File: "src/main.asm", Line: 4}
	edited.Mode = Load

	s.ResetCalls()
	got, err := c.Update(ctx, bp.ID, edited)
	require.NoError(t, err)
	assert.Equal(t, bp.ID, got.ID)
	assert.Equal(t, Load, got.Mode)
	assert.Equal(t, []uint32{2, 3}, got.Checkpoints)
	assert.Equal(t, "delete 1", s.Calls()[0])
	assert.False(t, s.has(1))

	assert.Nil(t, c.LineBreakpoint("src/main.asm", 3))
	assert.Equal(t, bp.ID, c.LineBreakpoint("src/main.asm", 4).ID)
	assert.Len(t, c.Breakpoints(), 1)

	// a stale error is cleared once the edit fixes the cause
	edited = got.Clone()
	edited.Condition = "Q == $1"
	got, err = c.Update(ctx, bp.ID, edited)
	require.NoError(t, err)
	assert.Equal(t, InvalidCondition, got.Error)
	edited.Condition = ""
	got, err = c.Update(ctx, bp.ID, edited)
	require.NoError(t, err)
	assert.Equal(t, NoError, got.Error)
	assert.True(t, got.Armed())
}

func TestUpdateUnboundResolvesNewExpressions(t *testing.T) {
	c := newTestCatalog(t, nil)
	ctx := context.Background()

	bp, err := c.Add(ctx, UnboundBind{Start: "$1000"}, Exec, "", nil)
	require.NoError(t, err)
	edited := bp.Clone()
	edited.Bind = UnboundBind{Start: "start", End: strp("start+2")}
	got, err := c.Update(ctx, bp.ID, edited)
	require.NoError(t, err)
	assert.Equal(t, []symbol.AddressRange{{Start: 0x080d, End: 0x080f}}, got.Ranges)

	edited.Bind = UnboundBind{Start: "$10", End: strp("$0f")}
	_, err = c.Update(ctx, bp.ID, edited)
	assert.True(t, errors.Is(err, symbol.ErrInvalidAddressRange))
	assert.Equal(t, "start-start+2", c.Get(bp.ID).Bind.String())
}

func TestEvents(t *testing.T) {
	s := newFakeSession()
	c := newTestCatalog(t, s)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		events []string
	)
	cancel := c.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, fmt.Sprintf("%s %d", ev.Kind, ev.Breakpoint.ID))
	})

	bp, err := c.Add(ctx, LineBind{File: "src/main.asm", Line: 3}, Exec, "", nil)
	require.NoError(t, err)

	c.HandleEvent(target.Event{Kind: target.CheckpointHit, Checkpoint: target.Checkpoint{ID: 1, CurrentlyHit: true, Enabled: true, HitCount: 3, IgnoreCount: 1}})
	got := c.Get(bp.ID)
	assert.True(t, got.IsHit)
	assert.Equal(t, uint32(3), got.HitCount)
	assert.Equal(t, uint32(1), got.IgnoreCount)

	// unknown checkpoints are dropped
	c.HandleEvent(target.Event{Kind: target.CheckpointHit, Checkpoint: target.Checkpoint{ID: 42, CurrentlyHit: true}})

	c.HandleEvent(target.Event{Kind: target.Resumed})
	assert.False(t, c.Get(bp.ID).IsHit)

	s.ResetCalls()
	c.HandleEvent(target.Event{Kind: target.Disconnected})
	assert.Empty(t, s.Calls())
	assert.False(t, c.Get(bp.ID).Armed())
	assert.Nil(t, c.ByCheckpoint(1))

	_, err = c.Remove(ctx, bp.ID, false)
	require.NoError(t, err)
	cancel()
	_, err = c.Add(ctx, UnboundBind{Start: "$1000"}, Exec, "", nil)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	id := bp.ID
	assert.Equal(t, []string{
		fmt.Sprintf("added %d", id),
		fmt.Sprintf("hit %d", id),
		fmt.Sprintf("updated %d", id),
		fmt.Sprintf("updated %d", id),
		fmt.Sprintf("removed %d", id),
	}, events)
}

func TestClosedCatalog(t *testing.T) {
	c := NewCatalog(config.Default(), "", nil)
	require.NoError(t, c.Close(context.Background()))

	_, err := c.Add(context.Background(), UnboundBind{Start: "$1000"}, Exec, "", nil)
	assert.Equal(t, ErrClosed, err)
	assert.Equal(t, ErrClosed, c.Close(context.Background()))
}

func TestOpenAndClosePersists(t *testing.T) {
	file := filepath.Join(t.TempDir(), ".retrodbg", "breakpoints.json")
	cfg := config.Default()
	cfg.PersistDelay = 0

	c, err := Open(cfg, file, newDebug())
	require.NoError(t, err)
	assert.Empty(t, c.Breakpoints())

	s := newFakeSession()
	c.SetSession(s)
	ctx := context.Background()
	_, _, err = c.AddLineBreakpoint(ctx, "src/main.asm", 3, "A == $10")
	require.NoError(t, err)
	_, err = c.Add(ctx, UnboundBind{Start: "$d020", End: strp("$d021")}, Store, "", nil)
	require.NoError(t, err)
	require.NoError(t, c.Close(ctx))
	assert.Empty(t, s.checkpoints)

	c, err = Open(cfg, file, nil)
	require.NoError(t, err)
	defer c.Close(ctx)

	bps := c.Breakpoints()
	require.Len(t, bps, 2)
	assert.Equal(t, LineBind{File: "src/main.asm", Line: 3}, bps[0].Bind)
	assert.Equal(t, "A == $10", bps[0].Condition)
	assert.Equal(t, Store, bps[1].Mode)
	assert.Equal(t, "$d020-$d021", bps[1].Bind.String())
	assert.Equal(t, []symbol.AddressRange{{Start: 0xd020, End: 0xd021}}, bps[1].Ranges)
	assert.NotNil(t, c.LineBreakpoint("src/main.asm", 3))
}

func TestUpdateMovedBindDropsOldRanges(t *testing.T) {
	type arg struct {
		name string
		from Bind
		to   Bind
	}
	args := []arg{
		{name: "line to line without code", from: LineBind{File: "src/main.asm", Line: 3}, to: LineBind{File: "src/main.asm", Line: 40}},
		{name: "unbound to line without code", from: UnboundBind{Start: "$c000"}, to: LineBind{File: "src/other.asm", Line: 1}},
	}

	for _, a := range args {
		s := newFakeSession()
		c := newTestCatalog(t, s)
		ctx := context.Background()

		bp, err := c.Add(ctx, a.from, Exec, "", nil)
		require.NoError(t, err, a.name)
		require.True(t, bp.Armed(), a.name)

		edited := bp.Clone()
		edited.Bind = a.to
		s.ResetCalls()
		got, err := c.Update(ctx, bp.ID, edited)
		require.NoError(t, err, a.name)
		assert.Equal(t, NoAddressRange, got.Error, a.name)
		assert.Empty(t, got.Ranges, a.name)
		assert.Empty(t, got.Checkpoints, a.name)
		assert.Equal(t, []string{"delete 1"}, s.Calls(), a.name)
		assert.Empty(t, s.checkpoints, a.name)
	}
}

func TestRearmFollowsReloadedLines(t *testing.T) {
	s := newFakeSession()
	c := newTestCatalog(t, s)
	ctx := context.Background()

	bp, err := c.Add(ctx, LineBind{File: "src/main.asm", Line: 3}, Exec, "", nil)
	require.NoError(t, err)
	require.True(t, bp.Armed())
	require.NoError(t, c.DisarmAll(ctx))

	// line 3 lost its code in the new build
	c.SetDebugInfo(&fakeDebug{lines: map[lineKey][]symbol.AddressRange{
		{"src/main.asm", 4}: {{Start: 0x0812, End: 0x0817}},
	}})
	armed, err := c.RearmAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, armed)

	got := c.Get(bp.ID)
	assert.Equal(t, NoAddressRange, got.Error)
	assert.Empty(t, got.Ranges)
	assert.Empty(t, s.checkpoints)
}

func (s *saver) lastSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func newPersistedCatalog(t *testing.T) (*Catalog, string) {
	file := filepath.Join(t.TempDir(), "breakpoints.json")
	cfg := config.Default()
	cfg.CaseInsensitivePaths = false
	cfg.PersistDelay = time.Hour
	c := NewCatalog(cfg, file, newDebug())
	t.Cleanup(func() { c.Close(context.Background()) })
	return c, file
}

func TestRearmAllSavesOnce(t *testing.T) {
	c, _ := newPersistedCatalog(t)
	ctx := context.Background()

	_, err := c.Add(ctx, LineBind{File: "src/main.asm", Line: 3}, Exec, "", nil)
	require.NoError(t, err)
	_, err = c.Add(ctx, LineBind{File: "src/main.asm", Line: 4}, Exec, "", nil)
	require.NoError(t, err)
	require.NoError(t, c.Flush())
	before := c.saver.lastSeq()

	c.SetSession(newFakeSession())
	armed, err := c.RearmAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, armed)
	assert.Equal(t, before+1, c.saver.lastSeq())
}

func TestHitSavesEnabledChange(t *testing.T) {
	c, file := newPersistedCatalog(t)
	ctx := context.Background()
	c.SetSession(newFakeSession())

	_, err := c.Add(ctx, LineBind{File: "src/main.asm", Line: 3}, Exec, "", nil)
	require.NoError(t, err)
	require.NoError(t, c.Flush())
	before := c.saver.lastSeq()

	c.HandleCheckpointHit(target.Checkpoint{ID: 1, CurrentlyHit: true, Enabled: true, HitCount: 1})
	assert.Equal(t, before, c.saver.lastSeq())

	c.HandleCheckpointHit(target.Checkpoint{ID: 1, CurrentlyHit: true, Enabled: false, HitCount: 2})
	assert.Equal(t, before+1, c.saver.lastSeq())

	require.NoError(t, c.Flush())
	bps, err := LoadFile(file)
	require.NoError(t, err)
	require.Len(t, bps, 1)
	assert.False(t, bps[0].Enabled)
}
