package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// handleWebSocket upgrades a connection. The generated client id becomes the
// caller identity for every operation the connection runs.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to upgrade connection")
		return
	}
	conn.SetReadLimit(maxRequestBytes)

	id, err := gonanoid.New()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate client id")
		_ = conn.Close()
		return
	}

	now := time.Now()
	client := &Client{
		ID:           id,
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
		IPAddress:    r.RemoteAddr,
		State:        StateConnecting,
	}
	if s.cfg.SharedSecret == "" {
		client.Authenticated = true
		client.State = StateAuthenticated
	}
	s.clients.put(client)
	s.logger.Info().Str("clientId", id).Str("ip", r.RemoteAddr).Msg("Client connected")

	if err := s.greet(client); err != nil {
		s.logger.Error().Err(err).Str("clientId", id).Msg("Failed to greet client")
		_ = conn.Close()
		s.clients.drop(id)
		return
	}
	go s.readLoop(client)
}

// greet admits the client or sends the challenge. An unanswered challenge
// ends the connection through the read deadline.
func (s *Server) greet(c *Client) error {
	if c.IsAuthenticated() {
		return c.WriteJSON(AuthResult{Event: "auth.success", Success: true, ClientID: c.ID})
	}

	challenge, err := s.authHandler.GenerateChallenge()
	if err != nil {
		return err
	}
	c.challenge(challenge)

	if s.cfg.AuthTimeout > 0 {
		_ = c.Conn.SetReadDeadline(time.Now().Add(s.cfg.AuthTimeout))
	}
	return c.WriteJSON(AuthChallenge{Event: "auth.challenge", Challenge: challenge, ClientID: c.ID})
}

// readLoop owns the connection's reads. On exit it releases everything the
// client held: its limiter and its document session.
func (s *Server) readLoop(c *Client) {
	defer func() {
		_ = c.Conn.Close()
		c.setState(StateDisconnected)
		s.clients.drop(c.ID)
		s.limits.forget(c.ID)
		s.releaseSession(c.ID)
		s.logger.Info().Str("clientId", c.ID).Msg("Client disconnected")
	}()

	for {
		_, frame, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Str("clientId", c.ID).Msg("WebSocket read ended")
			}
			return
		}
		s.clients.touch(c.ID, time.Now())
		s.handleFrame(c, frame)
	}
}

func (s *Server) handleFrame(c *Client, frame []byte) {
	var auth AuthResponse
	if json.Unmarshal(frame, &auth) == nil && auth.Method == "auth.response" {
		s.handleAuthFrame(c, auth)
		return
	}
	if !c.IsAuthenticated() {
		s.sendError(c, "", AuthenticationRequired, "Authentication required")
		return
	}

	req, rpcErr := s.router.Decode(frame)
	if rpcErr != nil {
		s.sendError(c, "", rpcErr.Code, rpcErr.Message)
		return
	}

	release, rejected := s.limits.admit(c.ID)
	if rejected != nil {
		s.sendError(c, req.ID, rejected.Code, rejected.Message)
		return
	}

	// Calls run concurrently; the per-session limiter bounds how many.
	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		defer release()

		ctx := callContext(s.base, c.ID, "", req.ID)
		if err := c.WriteJSON(s.router.Route(ctx, c.ID, req)); err != nil {
			s.logger.Error().Err(err).Str("clientId", c.ID).Str("requestId", req.ID).Msg("Failed to send response")
		}
	}()
}

func (s *Server) handleAuthFrame(c *Client, auth AuthResponse) {
	result := s.authHandler.HandleAuthResponse(c, auth.Signature)
	if err := c.WriteJSON(result); err != nil {
		s.logger.Error().Err(err).Str("clientId", c.ID).Msg("Failed to send auth result")
		return
	}

	if result.Success {
		_ = c.Conn.SetReadDeadline(time.Time{})
		s.logger.Info().Str("clientId", c.ID).Msg("Client authenticated")
		return
	}
	attempts := c.attempts()
	s.logger.Warn().Str("clientId", c.ID).Str("reason", result.Message).Int("attempts", attempts).Msg("Authentication failed")
	if attempts >= maxAuthAttempts {
		_ = c.Conn.Close()
	}
}

func (s *Server) sendError(c *Client, requestID string, code int, message string) {
	if err := c.WriteJSON(errorResponse(requestID, code, message, nil)); err != nil {
		s.logger.Error().Err(err).Str("clientId", c.ID).Msg("Failed to send error response")
	}
}

// releaseSession evicts the documents cached for a disconnected client.
// Uncommitted edits are discarded.
func (s *Server) releaseSession(clientID string) {
	sessions := s.dispatcher.Sessions()
	if sessions == nil {
		return
	}
	n, err := sessions.EvictAll(context.Background(), clientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("clientId", clientID).Msg("Failed to release client documents")
		return
	}
	if n > 0 {
		s.logger.Info().Str("clientId", clientID).Int("documents", n).Msg("Released client documents")
	}
}
