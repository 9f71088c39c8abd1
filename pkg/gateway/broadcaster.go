package gateway

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// EventBroadcaster pushes server events to authenticated clients. Document
// events skip the session that caused them, since that client already has
// the result of its own call.
type EventBroadcaster struct {
	clients *clientSet
	logger  zerolog.Logger
	seq     atomic.Int64
}

func newEventBroadcaster(clients *clientSet, logger zerolog.Logger) *EventBroadcaster {
	return &EventBroadcaster{clients: clients, logger: logger}
}

// Broadcast sends event to every authenticated client.
func (b *EventBroadcaster) Broadcast(event string, data interface{}) int {
	return b.Publish(EventMessage{Event: event, Data: data})
}

// Publish stamps msg and delivers it. When msg.Session names a connected
// client, that client is left out. It returns the number of deliveries.
func (b *EventBroadcaster) Publish(msg EventMessage) int {
	msg.Type = "event"
	msg.Seq = b.seq.Add(1)
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	frame, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("event", msg.Event).Msg("Failed to marshal event")
		return 0
	}

	targets := b.clients.filter(func(c *Client) bool {
		return authenticated(c) && c.ID != msg.Session
	})

	delivered := 0
	for _, c := range targets {
		if err := c.WriteMessage(websocket.TextMessage, frame); err != nil {
			b.logger.Warn().
				Err(err).
				Str("clientId", c.ID).
				Str("event", msg.Event).
				Msg("Failed to deliver event")
			continue
		}
		delivered++
	}

	b.logger.Debug().
		Str("event", msg.Event).
		Int64("seq", msg.Seq).
		Int("delivered", delivered).
		Int("targets", len(targets)).
		Msg("Event published")
	return delivered
}
