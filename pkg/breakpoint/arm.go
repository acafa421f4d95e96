package breakpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/hitzhangjie/retrodbg/pkg/expr/address"
	"github.com/hitzhangjie/retrodbg/pkg/expr/condition"
	"github.com/hitzhangjie/retrodbg/pkg/logger"
	"github.com/hitzhangjie/retrodbg/pkg/symbol"
	"github.com/hitzhangjie/retrodbg/pkg/target"
)

// arm creates one checkpoint per address range of bp and records the ids.
// Either every checkpoint is created or none is left behind; in the latter
// case bp carries the reason in Error.
func (c *Catalog) arm(ctx context.Context, bp *Breakpoint) bool {
	bp.clearError()

	ranges, err := c.ranges(bp)
	if err != nil {
		bp.setError(NoAddressRange, err.Error())
		logger.Logf(logTag, "arm breakpoint %d: %v", bp.ID, err)
		return false
	}
	if len(ranges) == 0 {
		bp.setError(NoAddressRange, fmt.Sprintf("%s has no address", bp.Bind))
		logger.Logf(logTag, "arm breakpoint %d: %s has no address", bp.ID, bp.Bind)
		return false
	}

	if bp.Condition != "" {
		if res := condition.Verify(bp.Condition, c.symbols()); res.HasError {
			bp.setError(InvalidCondition, res.FirstError())
			logger.Logf(logTag, "arm breakpoint %d: condition %q: %s", bp.ID, bp.Condition, res.FirstError())
			return false
		}
	}

	var created []uint32
	for _, r := range ranges {
		cp, err := c.session.SetCheckpoint(ctx, target.CheckpointRequest{
			Start:       r.Start,
			End:         r.End,
			StopWhenHit: bp.StopWhenHit,
			Enabled:     bp.Enabled,
			Op:          bp.Mode.operation(),
			Memspace:    target.MainMemory,
		})
		if err != nil {
			logger.Logf(logTag, "arm breakpoint %d: set checkpoint %s: %v", bp.ID, r, err)
			c.rollback(ctx, bp, created)
			bp.setError(DebuggerFailure, err.Error())
			return false
		}
		created = append(created, cp.ID)

		if bp.Condition == "" {
			continue
		}
		if err := c.session.SetCondition(ctx, cp.ID, bp.Condition); err != nil {
			logger.Logf(logTag, "arm breakpoint %d: set condition on checkpoint %d: %v", bp.ID, cp.ID, err)
			c.rollback(ctx, bp, created)
			kind := DebuggerFailure
			var me *target.MonitorError
			if errors.As(err, &me) {
				// the monitor understood the request and refused the expression
				kind = InvalidCondition
			}
			bp.setError(kind, err.Error())
			return false
		}
	}

	bp.Checkpoints = created
	for _, id := range created {
		c.byCheckpoint[id] = bp
	}
	return true
}

// rollback deletes checkpoints created by a failed arm. Ids that cannot be
// deleted are remembered for the next DisarmAll.
func (c *Catalog) rollback(ctx context.Context, bp *Breakpoint, created []uint32) {
	for _, id := range created {
		if err := c.session.DeleteCheckpoint(ctx, id); err != nil {
			logger.Logf(logTag, "arm breakpoint %d: rollback checkpoint %d: %v", bp.ID, id, err)
			c.orphans[id] = struct{}{}
		}
	}
}

// ranges returns the address ranges bp is to be armed on. Line breakpoints
// follow the current debug info, a line without code has no ranges. Unbound
// ones keep the ranges resolved when they were added, or are resolved now.
func (c *Catalog) ranges(bp *Breakpoint) ([]symbol.AddressRange, error) {
	switch b := bp.Bind.(type) {
	case LineBind:
		if c.debug != nil {
			bp.Ranges = c.debug.LineRanges(b.File, b.Line)
		}
	case UnboundBind:
		if len(bp.Ranges) == 0 {
			r, ok, err := c.evalRange(b)
			if err != nil {
				return nil, err
			}
			if ok {
				bp.Ranges = []symbol.AddressRange{r}
			}
		}
	}
	return bp.Ranges, nil
}

// resolveUnbound evaluates the expressions of an unbound breakpoint that
// has no ranges yet. Expressions that cannot be evaluated now are left for
// arm; only a range ending before it starts is an error.
func (c *Catalog) resolveUnbound(bp *Breakpoint) error {
	b, ok := bp.Bind.(UnboundBind)
	if !ok || len(bp.Ranges) > 0 {
		return nil
	}
	r, ok, err := c.evalRange(b)
	if errors.Is(err, symbol.ErrInvalidAddressRange) {
		return err
	}
	if err != nil || !ok {
		return nil
	}
	bp.Ranges = []symbol.AddressRange{r}
	return nil
}

func (c *Catalog) evalRange(b UnboundBind) (symbol.AddressRange, bool, error) {
	labels := c.labels()
	start, ok, err := address.Evaluate(labels, b.Start)
	if err != nil {
		return symbol.AddressRange{}, false, fmt.Errorf("start address: %w", err)
	}
	if !ok {
		return symbol.AddressRange{}, false, nil
	}

	end := start
	if b.End != nil {
		v, ok, err := address.Evaluate(labels, *b.End)
		if err != nil {
			return symbol.AddressRange{}, false, fmt.Errorf("end address: %w", err)
		}
		if ok {
			end = v
		}
	}

	r, err := symbol.NewAddressRange(start, end)
	if err != nil {
		return symbol.AddressRange{}, false, err
	}
	return r, true, nil
}

func (c *Catalog) labels() address.LabelTable {
	if c.debug == nil {
		return nil
	}
	return c.debug.Labels()
}

func (c *Catalog) symbols() condition.Symbols {
	if c.debug == nil {
		return condition.Symbols{}
	}
	return c.debug.Symbols()
}
