package tracing

import (
	"context"

	"github.com/google/uuid"
)

type fieldsKey struct{}

// Fields are the correlation values carried by one call through the
// transports, the dispatcher and the session manager.
type Fields struct {
	TraceID    string
	RequestID  string
	Operation  string
	SessionKey string
	// Path is the canonical document path the call works on.
	Path string
}

// overlay returns f with every non-empty value of top written over it.
func (f Fields) overlay(top Fields) Fields {
	if top.TraceID != "" {
		f.TraceID = top.TraceID
	}
	if top.RequestID != "" {
		f.RequestID = top.RequestID
	}
	if top.Operation != "" {
		f.Operation = top.Operation
	}
	if top.SessionKey != "" {
		f.SessionKey = top.SessionKey
	}
	if top.Path != "" {
		f.Path = top.Path
	}
	return f
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// FromContext returns the fields stored in ctx.
func FromContext(ctx context.Context) Fields {
	if ctx == nil {
		return Fields{}
	}
	f, _ := ctx.Value(fieldsKey{}).(Fields)
	return f
}

// NewContext stores f in ctx. Empty values in f keep what ctx already has.
func NewContext(ctx context.Context, f Fields) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, fieldsKey{}, FromContext(ctx).overlay(f))
}

// NewRequestContext starts a new trace on ctx.
func NewRequestContext(ctx context.Context) context.Context {
	return NewContext(ctx, Fields{TraceID: NewTraceID()})
}

// EnsureTraceID starts a new trace only when ctx has none.
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) != "" {
		return ctx
	}
	return NewRequestContext(ctx)
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	return NewContext(ctx, Fields{TraceID: traceID})
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return NewContext(ctx, Fields{RequestID: requestID})
}

func WithOperation(ctx context.Context, operation string) context.Context {
	return NewContext(ctx, Fields{Operation: operation})
}

func WithSessionKey(ctx context.Context, sessionKey string) context.Context {
	return NewContext(ctx, Fields{SessionKey: sessionKey})
}

func WithPath(ctx context.Context, path string) context.Context {
	return NewContext(ctx, Fields{Path: path})
}

func GetTraceID(ctx context.Context) string    { return FromContext(ctx).TraceID }
func GetRequestID(ctx context.Context) string  { return FromContext(ctx).RequestID }
func GetOperation(ctx context.Context) string  { return FromContext(ctx).Operation }
func GetSessionKey(ctx context.Context) string { return FromContext(ctx).SessionKey }
func GetPath(ctx context.Context) string       { return FromContext(ctx).Path }
