package ports

import (
	"context"

	"golang-mq-duplex/internal/domain"
)

// KeyResolver turns a declared queue identifier into a literal queue name.
// Implementations fail with an error wrapping domain.ErrUnresolvedKey when a
// placeholder cannot be resolved.
type KeyResolver interface {
	Resolve(raw string) (string, error)
}

// ResolveFunc adapts a plain function to KeyResolver.
type ResolveFunc func(raw string) (string, error)

// Resolve calls f(raw).
func (f ResolveFunc) Resolve(raw string) (string, error) {
	return f(raw)
}

// Journal records redirected calls.
type Journal interface {
	Record(ctx context.Context, d domain.Dispatch) error
}
