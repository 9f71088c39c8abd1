package gateway

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/harun/docmcp/internal/tracing"
)

// handleRPC serves one JSON-RPC call per POST. The caller identity comes from
// the X-Session-ID header; without it the call is anonymous and stateless.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.draining.Load() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}
	if s.cfg.SharedSecret != "" && !s.authHandler.VerifySecret(r.Header.Get(SecretHeader)) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	req, rpcErr := s.router.Decode(body)
	if rpcErr != nil {
		writeRPC(w, http.StatusBadRequest, &RPCResponse{JSONRPC: jsonrpcVersion, Error: rpcErr})
		return
	}

	caller := r.Header.Get(SessionHeader)
	release, rejected := s.limits.admit(caller)
	if rejected != nil {
		writeRPC(w, http.StatusTooManyRequests, errorResponse(req.ID, rejected.Code, rejected.Message, nil))
		return
	}
	defer release()

	s.inFlight.Add(1)
	defer s.inFlight.Done()

	ctx := callContext(r.Context(), caller, r.Header.Get(TraceHeader), req.ID)
	logger := tracing.LoggerFromContext(ctx, s.logger)
	logger.Debug().Str("method", req.Method).Str("caller", caller).Msg("HTTP RPC call")

	resp := s.router.Route(ctx, caller, req)
	w.Header().Set(TraceHeader, tracing.GetTraceID(ctx))
	if err := writeRPC(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to encode RPC response")
	}
}

func writeRPC(w http.ResponseWriter, status int, resp *RPCResponse) error {
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(resp)
}
