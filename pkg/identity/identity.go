// Package identity resolves the stable caller identity that scopes document sessions.
//
// Invariants:
// - CurrentIdentity never blocks and never fails.
// - A call with no session concept resolves to Anonymous.
//
// Usage:
//
//	ctx = identity.WithIdentity(ctx, "conn-1")
//	id := identity.FromContext().CurrentIdentity(ctx) // "conn-1"
package identity

import (
	"context"
	"strings"

	"github.com/harun/docmcp/internal/tracing"
)

// Anonymous is the identity of callers without a session.
const Anonymous = "anonymous"

// Accessor resolves the identity of the caller behind ctx.
type Accessor interface {
	CurrentIdentity(ctx context.Context) string
}

// Func adapts a plain function to Accessor. Empty results resolve to Anonymous.
type Func func(ctx context.Context) string

func (f Func) CurrentIdentity(ctx context.Context) string {
	if f == nil {
		return Anonymous
	}
	return normalize(f(ctx))
}

// WithIdentity attaches an identity to ctx. Transports call this once per
// connection or request scope.
func WithIdentity(ctx context.Context, id string) context.Context {
	return tracing.WithSessionKey(ctx, strings.TrimSpace(id))
}

// FromContext returns the accessor that reads identities attached by WithIdentity.
func FromContext() Accessor {
	return Func(tracing.GetSessionKey)
}

// Static always resolves to the same identity. Useful for single-caller
// processes such as the one-shot CLI.
func Static(id string) Accessor {
	id = normalize(id)
	return Func(func(context.Context) string { return id })
}

// Chain tries each accessor in order and returns the first non-anonymous identity.
func Chain(accessors ...Accessor) Accessor {
	return Func(func(ctx context.Context) string {
		for _, a := range accessors {
			if a == nil {
				continue
			}
			if id := a.CurrentIdentity(ctx); id != Anonymous {
				return id
			}
		}
		return Anonymous
	})
}

// IsAnonymous reports whether id is the anonymous identity.
func IsAnonymous(id string) bool {
	return normalize(id) == Anonymous
}

func normalize(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return Anonymous
	}
	return id
}
