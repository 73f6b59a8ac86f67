package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/service"
	"github.com/vedran77/consult/internal/transport/apierr"
	"nhooyr.io/websocket"
)

const (
	writeWait      = 10 * time.Second
	pingInterval   = 30 * time.Second
	maxMessageSize = 64 << 10
	sendBufSize    = 256
)

// Client represents a single WebSocket connection. It is joined to at most
// one channel at a time.
type Client struct {
	id    uuid.UUID
	hub   *Hub
	deps  *Deps
	conn  *websocket.Conn
	ident domain.Identity

	mu      sync.RWMutex
	channel uuid.UUID

	send   chan []byte
	cancel context.CancelFunc
	once   sync.Once
}

func NewClient(hub *Hub, deps *Deps, conn *websocket.Conn, ident domain.Identity) *Client {
	return &Client{
		id:    uuid.New(),
		hub:   hub,
		deps:  deps,
		conn:  conn,
		ident: ident,
		send:  make(chan []byte, sendBufSize),
	}
}

// Channel returns the joined channel, or uuid.Nil.
func (c *Client) Channel() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

func (c *Client) setChannel(id uuid.UUID) {
	c.mu.Lock()
	c.channel = id
	c.mu.Unlock()
}

// Serve runs the session until the peer goes away, a write fails, or ctx is
// cancelled. Presence is released exactly once on the way out.
func (c *Client) Serve(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	defer c.close()

	if !c.hub.Register(c) {
		return
	}
	c.deps.Metrics.ConnectionOpened()

	go c.WritePump(ctx)
	c.ReadPump(ctx)
}

func (c *Client) close() {
	c.once.Do(func() {
		c.deps.Presence.LeaveConn(c.id)
		c.setChannel(uuid.Nil)
		c.hub.Unregister(c)
		c.cancel()
		c.conn.Close(websocket.StatusNormalClosure, "")
		c.deps.Metrics.ConnectionClosed()
	})
}

// ReadPump reads events from the WebSocket and handles them in order.
func (c *Client) ReadPump(ctx context.Context) {
	log := logrus.WithField("user_id", c.ident.UserID)
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				log.Debug("ws: client disconnected")
			} else {
				log.WithError(err).Debug("ws: read error")
			}
			return
		}

		// A malformed frame fails only itself.
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			c.sendError(envelopeType(data), "INVALID_PAYLOAD", "invalid event envelope", "")
			continue
		}

		c.handleEvent(ctx, &event)
	}
}

// envelopeType recovers the event type from a frame that failed to decode.
func envelopeType(data []byte) string {
	var head struct {
		Type string `json:"type"`
	}
	if json.Unmarshal(data, &head) != nil {
		return ""
	}
	return head.Type
}

// WritePump writes messages from the send channel to the WebSocket. A failed
// write ends the whole session.
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.cancel()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(wctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				logrus.WithError(err).WithField("user_id", c.ident.UserID).Debug("ws: write error")
				return
			}

		case <-ticker.C:
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(wctx)
			cancel()
			if err != nil {
				logrus.WithError(err).WithField("user_id", c.ident.UserID).Debug("ws: ping error")
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// handleEvent routes an incoming client event. Failures are reported to the
// client and never end the session.
func (c *Client) handleEvent(ctx context.Context, event *Event) {
	switch event.Type {
	case EventTypeJoin:
		c.join(ctx, event)

	case EventTypeSend:
		var p SendPayload
		channelID, ok := c.joined(event, &p)
		if !ok {
			return
		}
		_, err := c.deps.Channels.Send(ctx, c.ident, channelID, service.SendMessageInput{
			Content:     p.Content,
			ContentType: p.ContentType,
		})
		if err != nil {
			c.sendServiceError(event.Type, err)
		}

	case EventTypeTyping:
		var p TypingPayload
		channelID, ok := c.joined(event, &p)
		if !ok {
			return
		}
		if _, err := c.deps.Guard.Authorize(ctx, channelID, c.ident); err != nil {
			c.sendServiceError(event.Type, err)
			return
		}
		c.deps.Presence.SetTyping(channelID, c.ident.UserID, p.IsTyping)

	case EventTypeMarkRead:
		var p MarkReadPayload
		channelID, ok := c.joined(event, &p)
		if !ok {
			return
		}
		if err := c.deps.Channels.MarkRead(ctx, c.ident, channelID, p.MessageIDs); err != nil {
			c.sendServiceError(event.Type, err)
		}

	case EventTypeLeave:
		c.deps.Presence.LeaveConn(c.id)
		c.setChannel(uuid.Nil)

	case EventTypePing:
		c.hub.SendTo(c, &Event{Type: EventTypePong, Timestamp: time.Now().Unix()})

	default:
		c.sendError(event.Type, "UNKNOWN_EVENT", "unknown event type: "+event.Type, "")
	}
}

func (c *Client) join(ctx context.Context, event *Event) {
	if event.ChannelID == nil {
		c.sendError(event.Type, apierr.CodeValidation, "channel_id is required", "channel_id")
		return
	}
	channelID := *event.ChannelID

	p, err := c.deps.Guard.Authorize(ctx, channelID, c.ident)
	if err != nil {
		c.sendServiceError(event.Type, err)
		return
	}

	// Subscribe first so this client sees its own user_joined.
	c.setChannel(channelID)
	c.deps.Presence.Join(channelID, c.id, *p)
	c.deps.Metrics.PresenceJoin()
}

// joined decodes the payload and returns the channel the client is in.
func (c *Client) joined(event *Event, payload any) (uuid.UUID, bool) {
	channelID := c.Channel()
	if channelID == uuid.Nil {
		c.sendError(event.Type, "NOT_JOINED", "join a channel first", "")
		return uuid.Nil, false
	}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, payload); err != nil {
			c.sendError(event.Type, "INVALID_PAYLOAD", "invalid "+event.Type+" payload", "")
			return uuid.Nil, false
		}
	}
	return channelID, true
}

func (c *Client) sendServiceError(op string, err error) {
	e, known := apierr.Classify(err)
	if !known {
		logrus.WithError(err).WithFields(logrus.Fields{
			"op":      op,
			"user_id": c.ident.UserID,
		}).Error("ws: operation failed")
	}
	c.sendError(op, e.Code, e.Message, e.Field)
}

func (c *Client) sendError(op, code, message, field string) {
	var channelID *uuid.UUID
	if id := c.Channel(); id != uuid.Nil {
		channelID = &id
	}
	evt, err := NewEvent(EventTypeError, channelID, ErrorPayload{Code: code, Message: message, Op: op, Field: field})
	if err != nil {
		return
	}
	c.hub.SendTo(c, evt)
}
