package gateway

import (
	"context"

	"github.com/harun/docmcp/internal/tracing"
	"github.com/harun/docmcp/pkg/errdefs"
	"github.com/harun/docmcp/pkg/identity"
	"github.com/harun/docmcp/pkg/operation"
	"github.com/harun/docmcp/pkg/session"
	"github.com/spf13/cast"
)

// OperationInfo describes one registered operation for operations.list.
type OperationInfo struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Access      string                 `json:"access"`
	Output      string                 `json:"output"`
	Schema      map[string]interface{} `json:"schema"`
}

// registerBuiltinMethods registers all built-in RPC methods
func (s *Server) registerBuiltinMethods() {
	_ = s.RegisterMethod("operations.list", s.handleOperationsList)
	_ = s.RegisterMethod("operation.call", s.handleOperationCall)
	_ = s.RegisterMethod("sessions.list", s.handleSessionsList)
	_ = s.RegisterMethod("sessions.close", s.handleSessionsClose)
	_ = s.RegisterMethod("gateway.clients", s.handleClients)
}

func (s *Server) handleOperationsList(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	descs := s.dispatcher.Registry().Descriptors()
	out := make([]OperationInfo, 0, len(descs))
	for _, d := range descs {
		out = append(out, OperationInfo{
			Name:        d.Name,
			Description: d.Traits.Description,
			Access:      d.Traits.Access.String(),
			Output:      d.Traits.Output.String(),
			Schema:      d.Schema(),
		})
	}
	return out, nil
}

// handleOperationCall dispatches {"operation": name, "arguments": {...}}.
// Failed operations become RPC errors carrying the full response as data.
func (s *Server) handleOperationCall(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	name, err := cast.ToStringE(params["operation"])
	if err != nil || name == "" {
		return nil, &RPCError{Code: InvalidParams, Message: "operation parameter is required and must be a string"}
	}

	var args map[string]interface{}
	if raw, ok := params["arguments"]; ok && raw != nil {
		args, err = cast.ToStringMapE(raw)
		if err != nil {
			return nil, &RPCError{Code: InvalidParams, Message: "arguments must be an object"}
		}
	}

	resp := s.dispatcher.Dispatch(ctx, operation.Request{Operation: name, Arguments: args})
	if !resp.Success {
		return nil, &RPCError{
			Code:    rpcCode(resp.Error.Kind),
			Message: resp.Content(),
			Data:    resp,
		}
	}

	if resp.Saved != "" {
		s.broadcaster.Publish(EventMessage{
			Event:   "document.saved",
			TraceID: tracing.GetTraceID(ctx),
			Session: identity.FromContext().CurrentIdentity(ctx),
			Data: map[string]interface{}{
				"operation": resp.Operation,
				"path":      resp.Saved,
			},
		})
	}
	return resp, nil
}

func (s *Server) handleSessionsList(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	all := cast.ToBool(params["all"])
	sessions := s.dispatcher.Sessions()
	out := []session.SessionInfo{}
	if sessions == nil {
		return out, nil
	}

	caller := identity.FromContext().CurrentIdentity(ctx)
	for _, info := range sessions.Sessions() {
		if all || info.Identity == caller {
			out = append(out, info)
		}
	}
	return out, nil
}

func (s *Server) handleSessionsClose(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	sessions := s.dispatcher.Sessions()
	if sessions == nil {
		return map[string]interface{}{"closed": 0}, nil
	}
	n, err := sessions.EvictAll(ctx, identity.FromContext().CurrentIdentity(ctx))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"closed": n}, nil
}

func (s *Server) handleClients(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return s.GetConnectedClients(), nil
}

func rpcCode(kind errdefs.Kind) int {
	switch kind {
	case errdefs.KindArgument:
		return OperationArgument
	case errdefs.KindNotFound:
		return OperationNotFound
	case errdefs.KindState:
		return OperationState
	case errdefs.KindConcurrency:
		return OperationConcurrency
	case errdefs.KindUnsupported:
		return OperationUnsupported
	case errdefs.KindCanceled:
		return OperationCanceled
	default:
		return InternalError
	}
}
