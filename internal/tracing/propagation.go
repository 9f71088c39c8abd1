package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext returns base enriched with the non-empty fields of ctx.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	f := FromContext(ctx)
	if f == (Fields{}) {
		return base
	}

	c := base.With()
	for _, kv := range []struct{ key, val string }{
		{"trace_id", f.TraceID},
		{"request_id", f.RequestID},
		{"operation", f.Operation},
		{"session_key", f.SessionKey},
		{"path", f.Path},
	} {
		if kv.val != "" {
			c = c.Str(kv.key, kv.val)
		}
	}
	return c.Logger()
}

// MergeContext copies tracing values from source into target where target has none.
func MergeContext(target, source context.Context) context.Context {
	return NewContext(target, FromContext(source).overlay(FromContext(target)))
}

// Detach returns a background context carrying ctx's tracing values but not
// its cancellation. Used for work that must finish after a request ends.
func Detach(ctx context.Context) context.Context {
	return NewContext(context.Background(), FromContext(ctx))
}
