package sweep

import (
	"context"
	"sync/atomic"
)

// CancellationSource is polled by a run, it is never pushed.  Cancelled must
// be safe to call from the run's goroutine while another goroutine sets it.
type CancellationSource interface {
	Cancelled() bool
}

// Flag is a CancellationSource set by hand, e.g. from an HTTP handler or a
// signal.  The zero value is not cancelled.
type Flag struct {
	v atomic.Bool
}

// Set cancels
func (f *Flag) Set() {
	f.v.Store(true)
}

// Reset clears the flag for reuse
func (f *Flag) Reset() {
	f.v.Store(false)
}

// Cancelled returns true once Set has been called
func (f *Flag) Cancelled() bool {
	return f.v.Load()
}

// ContextSource adapts a context to a CancellationSource
type ContextSource struct {
	Ctx context.Context
}

// Cancelled returns true once the context is done
func (c ContextSource) Cancelled() bool {
	return c.Ctx.Err() != nil
}

func cancelled(src CancellationSource) bool {
	return src != nil && src.Cancelled()
}
