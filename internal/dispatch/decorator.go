package dispatch

import "context"

// Spec declares a handler's name and the queues it consumes.
type Spec struct {
	Name   string
	Queues []string
}

// Wrap decorates a single-argument handler. Calls made outside a delivery
// context are published to the first queue of spec instead of running fn.
func Wrap[T any](ic *Interceptor, spec Spec, fn func(context.Context, T) error) func(context.Context, T) error {
	return func(ctx context.Context, arg T) error {
		_, err := ic.Intercept(ctx, invocation(spec, arg), func(ctx context.Context) (any, error) {
			return nil, fn(ctx, arg)
		})
		return err
	}
}

// WrapResult decorates a single-argument handler that returns a value.
//
// A redirected call cannot observe the handler's result: it returns the zero
// R and a nil error once the argument has been published.
func WrapResult[T, R any](ic *Interceptor, spec Spec, fn func(context.Context, T) (R, error)) func(context.Context, T) (R, error) {
	return func(ctx context.Context, arg T) (R, error) {
		out, err := ic.Intercept(ctx, invocation(spec, arg), func(ctx context.Context) (any, error) {
			return fn(ctx, arg)
		})

		if out == nil {
			var zero R
			return zero, err
		}
		return out.(R), err
	}
}

// Wrap0 decorates a handler without arguments. Such calls always run inline.
func Wrap0(ic *Interceptor, spec Spec, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := ic.Intercept(ctx, invocation(spec), func(ctx context.Context) (any, error) {
			return nil, fn(ctx)
		})
		return err
	}
}

// Wrap2 decorates a two-argument handler. A broker message carries a single
// payload, so such calls always run inline.
func Wrap2[A, B any](ic *Interceptor, spec Spec, fn func(context.Context, A, B) error) func(context.Context, A, B) error {
	return func(ctx context.Context, a A, b B) error {
		_, err := ic.Intercept(ctx, invocation(spec, a, b), func(ctx context.Context) (any, error) {
			return nil, fn(ctx, a, b)
		})
		return err
	}
}

func invocation(spec Spec, args ...any) Invocation {
	return Invocation{Handler: spec.Name, Queues: spec.Queues, Args: args}
}
