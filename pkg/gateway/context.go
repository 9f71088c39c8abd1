package gateway

import (
	"context"

	"github.com/harun/docmcp/internal/tracing"
	"github.com/harun/docmcp/pkg/identity"
)

// callContext scopes one RPC call: the caller identity selects the document
// session and the trace id ties logs, spans and the response together.
func callContext(parent context.Context, caller, traceID, requestID string) context.Context {
	if traceID == "" {
		traceID = tracing.NewTraceID()
	}
	ctx := tracing.WithTraceID(parent, traceID)
	if requestID != "" {
		ctx = tracing.WithRequestID(ctx, requestID)
	}
	if caller != "" {
		ctx = identity.WithIdentity(ctx, caller)
	}
	return ctx
}
