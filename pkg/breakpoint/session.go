package breakpoint

import (
	"context"

	"github.com/hitzhangjie/retrodbg/pkg/expr/address"
	"github.com/hitzhangjie/retrodbg/pkg/expr/condition"
	"github.com/hitzhangjie/retrodbg/pkg/symbol"
	"github.com/hitzhangjie/retrodbg/pkg/target"
)

// Session the debugger the catalog arms its breakpoints in. *target.Monitor
// implements it.
type Session interface {
	Connected() bool
	SetCheckpoint(ctx context.Context, req target.CheckpointRequest) (target.Checkpoint, error)
	SetCondition(ctx context.Context, id uint32, cond string) error
	DeleteCheckpoint(ctx context.Context, id uint32) error
	ToggleCheckpoint(ctx context.Context, id uint32, enabled bool) error
	ListCheckpoints(ctx context.Context) ([]target.Checkpoint, error)
}

// DebugInfo the currently parsed program. *symbol.Program implements it.
type DebugInfo interface {
	// LineRanges maps a project relative source line (0-based) to the
	// address ranges generated for it.
	LineRanges(file string, line int) []symbol.AddressRange
	// Labels returns nil when no labels are loaded.
	Labels() address.LabelTable
	Symbols() condition.Symbols
}

var (
	_ Session   = (*target.Monitor)(nil)
	_ DebugInfo = (*symbol.Program)(nil)
)
