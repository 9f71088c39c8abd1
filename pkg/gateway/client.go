package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ClientState tracks a connection through the auth handshake.
type ClientState int

const (
	StateConnecting ClientState = iota
	StateAuthenticating
	StateAuthenticated
	StateDisconnected
)

func (s ClientState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Client is one websocket connection. Its ID doubles as the session
// identity, so each connection gets its own document session.
type Client struct {
	ID          string
	Conn        *websocket.Conn
	ConnectedAt time.Time
	IPAddress   string

	// mu guards the handshake and activity fields below.
	mu            sync.Mutex
	Authenticated bool
	Challenge     string
	AuthAttempts  int
	State         ClientState
	LastActivity  time.Time

	// gorilla connections allow one concurrent writer
	writeMu sync.Mutex
}

// IsAuthenticated reports whether the client passed the handshake.
func (c *Client) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Authenticated
}

func (c *Client) setState(state ClientState) {
	c.mu.Lock()
	c.State = state
	c.mu.Unlock()
}

func (c *Client) touch(at time.Time) {
	c.mu.Lock()
	c.LastActivity = at
	c.mu.Unlock()
}

// challenge records a pending challenge and moves the client into the handshake.
func (c *Client) challenge(value string) {
	c.mu.Lock()
	c.Challenge = value
	c.State = StateAuthenticating
	c.mu.Unlock()
}

func (c *Client) attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.AuthAttempts
}

// info copies the client into its listing view.
func (c *Client) info(now time.Time) ClientInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ClientInfo{
		ID:            c.ID,
		State:         c.State.String(),
		Authenticated: c.Authenticated,
		ConnectedAt:   c.ConnectedAt,
		LastActivity:  c.LastActivity,
		IPAddress:     c.IPAddress,
		Idle:          now.Sub(c.LastActivity) > idleAfter,
	}
}

func (c *Client) WriteJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteJSON(v)
}

func (c *Client) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// ClientInfo is the gateway.clients view of a connection.
type ClientInfo struct {
	ID            string    `json:"id"`
	State         string    `json:"state"`
	Authenticated bool      `json:"authenticated"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastActivity  time.Time `json:"lastActivity"`
	IPAddress     string    `json:"ipAddress"`
	Idle          bool      `json:"idle"`
	Documents     []string  `json:"documents,omitempty"`
	Unsaved       int       `json:"unsaved,omitempty"`
}
