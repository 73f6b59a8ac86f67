package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/presence"
)

// Event types - Client → Server
const (
	EventTypeJoin     = "join"
	EventTypeSend     = "message"
	EventTypeTyping   = "typing"
	EventTypeMarkRead = "mark_read"
	EventTypeLeave    = "leave"
	EventTypePing     = "ping"
)

// Event types - Server → Client
const (
	EventTypeMessage    = "message"
	EventTypeUserJoined = "user_joined"
	EventTypeUserLeft   = "user_left"
	EventTypeRead       = "read"
	EventTypePong       = "pong"
	EventTypeError      = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type      string          `json:"type"`
	ChannelID *uuid.UUID      `json:"channel_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type SendPayload struct {
	Content     string             `json:"content"`
	ContentType domain.ContentKind `json:"content_type,omitempty"`
}

type TypingPayload struct {
	IsTyping bool `json:"is_typing"`
}

type MarkReadPayload struct {
	MessageIDs []domain.MessageID `json:"message_ids"`
}

// --- Server → Client payloads ---

type MessagePayload struct {
	domain.Message
}

// PresencePayload carries the participant that changed and the channel's
// presence set afterwards.
type PresencePayload struct {
	User  presence.Entry   `json:"user"`
	Users []presence.Entry `json:"users"`
}

type ReadPayload struct {
	Reader     domain.Role        `json:"reader"`
	MessageIDs []domain.MessageID `json:"message_ids"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Op is the client event that failed.
	Op    string `json:"op,omitempty"`
	Field string `json:"field,omitempty"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, channelID *uuid.UUID, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		ChannelID: channelID,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}
