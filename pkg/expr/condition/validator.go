package condition

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/hitzhangjie/retrodbg/pkg/config"
)

// ErrSuperseded is returned by VerifyAsync when newer text arrived before
// the validation could commit its result.
var ErrSuperseded = errors.New("validation superseded by newer text")

// Validator validates condition text as the user types. Each new text
// starts a quiet period; only when it elapses without further input is the
// text validated. Every request takes a generation number and a result is
// committed only if its generation is still the latest, so a cancelled or
// overtaken validation never replaces the previous result.
type Validator struct {
	delay    time.Duration
	symbols  func() Symbols
	onResult func(Result)

	generation *atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	last   Result

	notifyMu  sync.Mutex
	delivered uint64 // generation of the last result passed to onResult
}

// NewValidator creates a validator using the quiet period from cfg.
// symbols is called at validation time so that labels and banks loaded in
// the meantime are taken into account; it may be nil. onResult, when not
// nil, is called with every committed result, never with a result older
// than one it has already seen. It must not call VerifyAsync.
func NewValidator(cfg config.Platform, symbols func() Symbols, onResult func(Result)) *Validator {
	if symbols == nil {
		symbols = func() Symbols { return Symbols{} }
	}
	return &Validator{
		delay:      cfg.ValidationDelay,
		symbols:    symbols,
		onResult:   onResult,
		generation: atomic.NewUint64(0),
	}
}

// Update schedules validation of text without waiting for it. Requests are
// ordered by Update calls: text passed later always supersedes text passed
// earlier.
func (v *Validator) Update(text string) {
	ctx, cancel, gen := v.begin(context.Background())
	go func() {
		defer cancel()
		v.run(ctx, gen, text)
	}()
}

// VerifyAsync waits for the quiet period, validates text and commits the
// result. It returns ErrSuperseded if newer text arrived first, or the
// context's error if ctx is done; in both cases the previously committed
// result is left untouched.
func (v *Validator) VerifyAsync(ctx context.Context, text string) (Result, error) {
	ctx, cancel, gen := v.begin(ctx)
	defer cancel()
	return v.run(ctx, gen, text)
}

// begin takes the next generation and cancels the request in flight.
func (v *Validator) begin(parent context.Context) (context.Context, context.CancelFunc, uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	gen := v.generation.Inc()
	if v.cancel != nil {
		v.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	v.cancel = cancel
	return ctx, cancel, gen
}

func (v *Validator) run(ctx context.Context, gen uint64, text string) (Result, error) {
	timer := time.NewTimer(v.delay)
	select {
	case <-timer.C:
	case <-ctx.Done():
		timer.Stop()
		return Result{}, v.cancelled(ctx, gen)
	}

	res := Verify(text, v.symbols())

	v.mu.Lock()
	if ctx.Err() != nil || v.generation.Load() != gen {
		v.mu.Unlock()
		return Result{}, v.cancelled(ctx, gen)
	}
	v.last = res
	v.mu.Unlock()

	v.notify(gen, res)
	return res, nil
}

// notify passes res to onResult unless a newer result got there first.
func (v *Validator) notify(gen uint64, res Result) {
	if v.onResult == nil {
		return
	}
	v.notifyMu.Lock()
	defer v.notifyMu.Unlock()
	if gen <= v.delivered {
		return
	}
	v.delivered = gen
	v.onResult(res)
}

func (v *Validator) cancelled(ctx context.Context, gen uint64) error {
	if v.generation.Load() != gen {
		return ErrSuperseded
	}
	return ctx.Err()
}

// Result returns the last committed result.
func (v *Validator) Result() Result {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.last
}

// Generation returns the number of validation requests seen so far.
func (v *Validator) Generation() uint64 {
	return v.generation.Load()
}

// Close cancels any validation in flight.
func (v *Validator) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.generation.Inc()
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
}
