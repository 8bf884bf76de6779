package upstream

import (
	"context"
	"errors"
	"time"
)

// idleTimer cancels a stream context with ErrIdleTimeout when the upstream
// stays silent for longer than its timeout. Call touch whenever bytes arrive.
type idleTimer struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	d      time.Duration
	timer  *time.Timer
}

// newIdleTimer derives a cancellable context from ctx. A zero d means
// DefaultIdleTimeout.
func newIdleTimer(ctx context.Context, d time.Duration) *idleTimer {
	if d <= 0 {
		d = DefaultIdleTimeout
	}
	ctx, cancel := context.WithCancelCause(ctx)
	t := &idleTimer{ctx: ctx, cancel: cancel, d: d}
	t.timer = time.AfterFunc(d, func() { cancel(ErrIdleTimeout) })
	return t
}

func (t *idleTimer) touch() {
	t.timer.Reset(t.d)
}

func (t *idleTimer) stop() {
	t.timer.Stop()
	t.cancel(nil)
}

// transportError wraps err for op, replacing it with ErrIdleTimeout when the
// timer fired.
func (t *idleTimer) transportError(op string, err error) error {
	if cause := context.Cause(t.ctx); errors.Is(cause, ErrIdleTimeout) {
		err = ErrIdleTimeout
	}
	return &TransportError{Op: op, Err: err}
}
