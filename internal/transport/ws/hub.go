package ws

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Hub manages all active WebSocket clients and routes messages. All fan-out
// goes through the single Run loop, so clients see a channel's events in the
// order they were enqueued.
type Hub struct {
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMsg
	done       chan struct{}
}

type broadcastMsg struct {
	channelID uuid.UUID
	data      []byte
	// target limits delivery to one client (replies, errors).
	target *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMsg, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the Hub's main event loop and blocks until ctx is cancelled.
// On return every client's send channel is closed, which ends its session.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return nil

		case client := <-h.register:
			h.clients[client] = struct{}{}
			logrus.WithFields(logrus.Fields{
				"user_id": client.ident.UserID,
				"role":    client.ident.Role,
				"total":   len(h.clients),
			}).Debug("ws hub: client connected")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				logrus.WithField("total", len(h.clients)).Debug("ws hub: client disconnected")
			}

		case msg := <-h.broadcast:
			if msg.target != nil {
				if _, ok := h.clients[msg.target]; ok {
					h.deliver(msg.target, msg.data)
				}
				continue
			}
			for client := range h.clients {
				if client.Channel() != msg.channelID {
					continue
				}
				h.deliver(client, msg.data)
			}
		}
	}
}

func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		// Client buffer full - disconnect
		logrus.WithField("user_id", client.ident.UserID).Warn("ws hub: slow client dropped")
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
}

// Register adds a client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToChannel sends an event to every client joined to a channel.
func (h *Hub) BroadcastToChannel(channelID uuid.UUID, event *Event) {
	h.enqueue(&broadcastMsg{channelID: channelID}, event)
}

// SendTo sends an event to a single client.
func (h *Hub) SendTo(client *Client, event *Event) {
	h.enqueue(&broadcastMsg{target: client}, event)
}

func (h *Hub) enqueue(msg *broadcastMsg, event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logrus.WithError(err).Error("ws hub: marshal event")
		return
	}
	msg.data = data
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}
