package agent

import "context"

// Yielder is the hook a scheduler installs in a handler's context so the
// handler can give up its execution slot while it waits.
//
// Release gives the slot up and reports whether it was held by the caller.
// Reacquire blocks until the slot is owned again; it is only called after a
// Release that returned true.
type Yielder interface {
	Release() bool
	Reacquire()
}

type yielderKey struct{}

// ContextWithYielder returns ctx carrying y. Passing a nil y masks any
// yielder inherited from a parent context.
func ContextWithYielder(ctx context.Context, y Yielder) context.Context {
	return context.WithValue(ctx, yielderKey{}, y)
}

func yielderFrom(ctx context.Context) Yielder {
	y, _ := ctx.Value(yielderKey{}).(Yielder)
	return y
}

// Suspend runs wait as an explicit suspension point. While wait runs, the
// calling handler does not hold the scheduler, so the runtime may dequeue
// and start other deliveries. Outside a handler Suspend simply calls wait.
//
// A handler that blocks without Suspend keeps every other delivery waiting.
func Suspend(ctx context.Context, wait func(ctx context.Context) error) error {
	y := yielderFrom(ctx)
	if y == nil || !y.Release() {
		return wait(ctx)
	}
	defer y.Reacquire()
	return wait(ctx)
}
