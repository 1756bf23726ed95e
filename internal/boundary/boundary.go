// Package boundary fault-isolates a renderable region. A panic escaping the
// wrapped render function is caught here instead of crashing the host: the
// current cart contents are preserved for recovery, the fault is reported,
// and the user gets a bounded number of retries before only destructive
// recovery remains.
package boundary

import (
	"context"
	"fmt"
	"sync"

	pkgerrors "github.com/harvestly/cart-engine/pkg/errors"
	"github.com/harvestly/cart-engine/pkg/logger"
	"github.com/harvestly/cart-engine/pkg/metrics"
)

type State string

const (
	StateHealthy   State = "healthy"
	StateCaught    State = "caught"
	StateExhausted State = "exhausted"
)

const defaultMaxRetries = 3

// Options wires the boundary's collaborators. Preserve, Restore and Reset
// are all optional; a nil hook is skipped.
type Options struct {
	// Component tags fault reports, e.g. "cart_panel".
	Component  string
	MaxRetries int
	Reporter   Reporter
	Logger     *logger.Logger
	Metrics    *metrics.CartMetrics

	// Preserve snapshots current cart contents when a fault is caught.
	Preserve func(ctx context.Context) error
	// Restore re-applies preserved contents before a retry re-renders.
	Restore func(ctx context.Context) error
	// Reset is the destructive escape hatch once retries are exhausted.
	Reset func(ctx context.Context) error
}

type Boundary struct {
	component  string
	maxRetries int
	reporter   Reporter
	logg       *logger.Logger
	met        *metrics.CartMetrics
	preserve   func(ctx context.Context) error
	restore    func(ctx context.Context) error
	reset      func(ctx context.Context) error

	mu        sync.Mutex
	state     State
	faults    int
	retries   int
	lastFault error
}

func New(opts Options) *Boundary {
	max := opts.MaxRetries
	if max <= 0 {
		max = defaultMaxRetries
	}
	return &Boundary{
		component:  opts.Component,
		maxRetries: max,
		reporter:   opts.Reporter,
		logg:       opts.Logger,
		met:        opts.Metrics,
		preserve:   opts.Preserve,
		restore:    opts.Restore,
		reset:      opts.Reset,
		state:      StateHealthy,
	}
}

// Render runs the region's render function, intercepting any panic. A
// returned error is ordinary error handling and passes through untouched;
// only an escaping panic trips the boundary. While exhausted, rendering is
// refused until Reset.
func (b *Boundary) Render(ctx context.Context, render func() error) (err error) {
	b.mu.Lock()
	if b.state == StateExhausted {
		last := b.lastFault
		b.mu.Unlock()
		return pkgerrors.Wrap(pkgerrors.CodeRenderFault, last, "retries exhausted, recovery required")
	}
	b.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			err = b.catchFault(ctx, fmt.Errorf("panic: %v", rec))
		}
	}()
	return render()
}

// Retry restores preserved contents and returns the boundary to rendering.
// It reports false once the retry budget is spent.
func (b *Boundary) Retry(ctx context.Context) bool {
	b.mu.Lock()
	if b.state != StateCaught {
		b.mu.Unlock()
		return false
	}
	b.retries++
	b.state = StateHealthy
	b.mu.Unlock()

	if b.restore != nil {
		if err := b.restore(ctx); err != nil && b.logg != nil {
			b.logg.Warn(b.logCtx(ctx), "restoring contents before retry failed")
		}
	}
	return true
}

// Reset performs destructive recovery: clears preserved state and rearms
// the boundary from scratch.
func (b *Boundary) Reset(ctx context.Context) error {
	var err error
	if b.reset != nil {
		err = b.reset(ctx)
	}

	b.mu.Lock()
	b.state = StateHealthy
	b.faults = 0
	b.retries = 0
	b.lastFault = nil
	b.mu.Unlock()
	return err
}

// Status reports the current state, the retries consumed so far and the
// budget, for the fallback UI.
func (b *Boundary) Status() (State, int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state, b.retries, b.maxRetries
}

func (b *Boundary) catchFault(ctx context.Context, fault error) error {
	b.mu.Lock()
	b.faults++
	b.lastFault = fault
	if b.faults >= b.maxRetries {
		b.state = StateExhausted
	} else {
		b.state = StateCaught
	}
	state := b.state
	b.mu.Unlock()

	b.met.IncRenderFault()
	b.preserveContents(ctx)

	if b.reporter != nil {
		b.reporter.Report(ctx, fault, b.component, SeverityHigh)
	}
	if b.logg != nil {
		logCtx := b.logg.WithFields(ctx, map[string]any{
			"component": b.component,
			"state":     string(state),
		})
		b.logg.Error(logCtx, "render fault caught", fault)
	}

	if state == StateExhausted {
		return pkgerrors.Wrap(pkgerrors.CodeRenderFault, fault, "retries exhausted, recovery required")
	}
	return pkgerrors.Wrap(pkgerrors.CodeRenderFault, fault, "render fault caught")
}

// preserveContents is strictly best-effort: a second fault while preserving
// must never escape the boundary.
func (b *Boundary) preserveContents(ctx context.Context) {
	if b.preserve == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil && b.logg != nil {
			b.logg.Warn(b.logCtx(ctx), "preserving contents panicked")
		}
	}()
	if err := b.preserve(ctx); err != nil && b.logg != nil {
		b.logg.Warn(b.logCtx(ctx), "preserving contents failed")
	}
}

func (b *Boundary) logCtx(ctx context.Context) context.Context {
	if b.logg == nil {
		return ctx
	}
	return b.logg.WithComponent(ctx, b.component)
}
