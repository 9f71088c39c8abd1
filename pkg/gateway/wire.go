package gateway

const jsonrpcVersion = "2.0"

// RPCRequest is one JSON-RPC call. IdempotencyKey makes retries safe: a
// repeat from the same caller gets the first response back.
type RPCRequest struct {
	ID             string                 `json:"id"`
	Method         string                 `json:"method"`
	Params         map[string]interface{} `json:"params,omitempty"`
	JSONRPC        string                 `json:"jsonrpc"`
	IdempotencyKey string                 `json:"idempotencyKey,omitempty"`
}

type RPCResponse struct {
	ID      string      `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	JSONRPC string      `json:"jsonrpc"`
}

// RPCError is both the wire error object and a Go error, so handlers can
// return it to pick the code.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// Standard JSON-RPC codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Gateway codes.
const (
	AuthenticationRequired = -32001
	RateLimitExceeded      = -32005
	TooManyConcurrent      = -32006
)

// Operation failure codes, one per error kind.
const (
	OperationArgument    = -32010
	OperationNotFound    = -32011
	OperationState       = -32012
	OperationConcurrency = -32013
	OperationUnsupported = -32014
	OperationCanceled    = -32015
)

// EventMessage is a server-initiated notification. Session names the
// originating client, which does not receive its own event.
type EventMessage struct {
	Type      string      `json:"type,omitempty"`
	Event     string      `json:"event"`
	Seq       int64       `json:"seq,omitempty"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
	Session   string      `json:"session,omitempty"`
}

// AuthChallenge is sent on connect when a shared secret is configured.
type AuthChallenge struct {
	Event     string `json:"event"`
	Challenge string `json:"challenge"`
	ClientID  string `json:"clientId"`
}

// AuthResponse carries hex(HMAC-SHA256(secret, clientId + ":" + challenge)).
type AuthResponse struct {
	Method    string `json:"method"`
	Signature string `json:"signature"`
}

type AuthResult struct {
	Event    string `json:"event"`
	Success  bool   `json:"success,omitempty"`
	Message  string `json:"message,omitempty"`
	ClientID string `json:"clientId,omitempty"`
}
