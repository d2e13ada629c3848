package agent

import (
	"context"
	"sync"
)

// Future is the result handle returned by SendMessage. It resolves exactly
// once, with the handler's return value or its failure.
type Future struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// NewFuture returns an unresolved Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve settles the future. Only the first call has an effect; it reports
// whether this call settled it.
func (f *Future) Resolve(value any, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value, f.err = value, err
		close(f.done)
		settled = true
	})
	return settled
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Result returns the settled value without blocking. ok is false while the
// future is pending.
func (f *Future) Result() (value any, err error, ok bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		return nil, nil, false
	}
}

// Await blocks until the future resolves or ctx ends. Called from inside a
// handler it is a suspension point.
func (f *Future) Await(ctx context.Context) (any, error) {
	if v, err, ok := f.Result(); ok {
		return v, err
	}
	err := Suspend(ctx, func(ctx context.Context) error {
		select {
		case <-f.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		return nil, err
	}
	return f.value, f.err
}
