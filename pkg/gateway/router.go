package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/harun/docmcp/pkg/errdefs"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

// RequestHandler handles one RPC method call.
type RequestHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// DefaultIdempotencyTTL is how long a response is replayed for a repeated idempotency key.
const DefaultIdempotencyTTL = 5 * time.Minute

// RPCRouter maps method names to handlers and replays responses for
// repeated idempotency keys.
type RPCRouter struct {
	mu      sync.RWMutex
	methods map[string]RequestHandler
	replay  *replayCache
}

// NewRPCRouter creates an empty router.
func NewRPCRouter() *RPCRouter {
	return &RPCRouter{
		methods: make(map[string]RequestHandler),
		replay:  newReplayCache(DefaultIdempotencyTTL),
	}
}

// Register binds name to handler, replacing any previous binding.
func (r *RPCRouter) Register(name string, handler RequestHandler) error {
	if name == "" {
		return fmt.Errorf("method name cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}
	r.mu.Lock()
	r.methods[name] = handler
	r.mu.Unlock()
	return nil
}

// Unregister removes name. Unknown names are ignored.
func (r *RPCRouter) Unregister(name string) {
	r.mu.Lock()
	delete(r.methods, name)
	r.mu.Unlock()
}

// Has reports whether name is bound.
func (r *RPCRouter) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Methods returns the bound method names, sorted.
func (r *RPCRouter) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *RPCRouter) lookup(name string) (RequestHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.methods[name]
	return h, ok
}

// Decode parses one JSON-RPC request frame. A missing jsonrpc field is
// accepted as 2.0; any other version is rejected.
func (r *RPCRouter) Decode(data []byte) (*RPCRequest, *RPCError) {
	var req RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RPCError{Code: ParseError, Message: "Parse error", Data: err.Error()}
	}

	switch {
	case req.ID == "":
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing id field"}
	case req.Method == "":
		return nil, &RPCError{Code: InvalidRequest, Message: "Invalid request: missing method field"}
	case req.JSONRPC == "":
		req.JSONRPC = jsonrpcVersion
	case req.JSONRPC != jsonrpcVersion:
		return nil, &RPCError{Code: InvalidRequest, Message: fmt.Sprintf("Invalid request: unsupported jsonrpc version %q", req.JSONRPC)}
	}
	return &req, nil
}

// Route runs req on behalf of caller. A repeated idempotency key from the
// same caller and method gets the first response back under the new id.
func (r *RPCRouter) Route(ctx context.Context, caller string, req *RPCRequest) *RPCResponse {
	if req == nil {
		return errorResponse("", InvalidRequest, "invalid request", nil)
	}

	key := replayKey(caller, req.Method, req.IdempotencyKey)
	if prev, ok := r.replay.get(key); ok {
		prev.ID = req.ID
		return prev
	}

	handler, ok := r.lookup(req.Method)
	if !ok {
		return errorResponse(req.ID, MethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}

	resp := &RPCResponse{ID: req.ID, JSONRPC: jsonrpcVersion}
	result, err := invoke(ctx, req.Method, handler, req.Params)
	if err != nil {
		resp.Error = asRPCError(err)
	} else {
		resp.Result = result
	}

	r.replay.put(key, resp)
	return resp
}

// invoke turns a handler panic into an error so one bad call cannot take
// down the connection.
func invoke(ctx context.Context, method string, h RequestHandler, params map[string]interface{}) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("method", method).Interface("panic", p).Msg("RPC handler panicked")
			err = fmt.Errorf("internal error in %s", method)
		}
	}()
	return h(ctx, params)
}

// asRPCError keeps RPC errors as they are and maps classified errors to the
// operation code range.
func asRPCError(err error) *RPCError {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		e := *rpcErr
		return &e
	}
	return &RPCError{Code: rpcCode(errdefs.KindOf(err)), Message: err.Error()}
}

func errorResponse(id string, code int, message string, data interface{}) *RPCResponse {
	return &RPCResponse{
		ID:      id,
		JSONRPC: jsonrpcVersion,
		Error:   &RPCError{Code: code, Message: message, Data: data},
	}
}

// replayCache holds responses by idempotency key.
type replayCache struct {
	c *cache.Cache
}

func newReplayCache(ttl time.Duration) *replayCache {
	return &replayCache{c: cache.New(ttl, 2*ttl)}
}

func replayKey(caller, method, idempotencyKey string) string {
	if idempotencyKey == "" {
		return ""
	}
	return caller + "\x00" + method + "\x00" + idempotencyKey
}

// get returns a copy so callers may set the id freely.
func (rc *replayCache) get(key string) (*RPCResponse, bool) {
	if key == "" {
		return nil, false
	}
	v, ok := rc.c.Get(key)
	if !ok {
		return nil, false
	}
	resp := v.(RPCResponse)
	if resp.Error != nil {
		e := *resp.Error
		resp.Error = &e
	}
	return &resp, true
}

func (rc *replayCache) put(key string, resp *RPCResponse) {
	if key == "" {
		return
	}
	stored := *resp
	if resp.Error != nil {
		e := *resp.Error
		stored.Error = &e
	}
	rc.c.SetDefault(key, stored)
}
