package domain

import (
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type ContentKind string

const (
	ContentText  ContentKind = "text"
	ContentImage ContentKind = "image"
	ContentFile  ContentKind = "file"
)

func (k ContentKind) Valid() bool {
	return k == ContentText || k == ContentImage || k == ContentFile
}

// MessageID is a time-ordered snowflake id. It is rendered as a decimal
// string on the wire so javascript clients do not lose precision.
type MessageID int64

func (id MessageID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

func (id MessageID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *MessageID) UnmarshalText(b []byte) error {
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*id = MessageID(v)
	return nil
}

// Message is one entry of a channel's append-only log. The sender is known
// only by role. Content holds the ciphertext while stored and the plaintext
// once a caller has decrypted it.
type Message struct {
	ID            MessageID   `json:"id"`
	ChannelID     uuid.UUID   `json:"channel_id"`
	Seq           int64       `json:"seq"`
	SenderRole    Role        `json:"sender"`
	Content       string      `json:"content"`
	ContentType   ContentKind `json:"content_type"`
	AttachmentRef *string     `json:"attachment_ref,omitempty"`
	ReadBy        []Role      `json:"read_by"`
	CreatedAt     time.Time   `json:"timestamp"`
}

func (m Message) IsReadBy(role Role) bool {
	return slices.Contains(m.ReadBy, role)
}

// MarkReadBy records role in ReadBy and reports whether anything changed.
// The sender's own role is never recorded.
func (m *Message) MarkReadBy(role Role) bool {
	if role == m.SenderRole || m.IsReadBy(role) {
		return false
	}
	m.ReadBy = append(m.ReadBy, role)
	return true
}

// UnreadFor reports whether the message counts as unread for role.
func (m Message) UnreadFor(role Role) bool {
	return m.SenderRole != role && !m.IsReadBy(role)
}

// Clone returns a deep copy.
func (m Message) Clone() Message {
	m.ReadBy = slices.Clone(m.ReadBy)
	if m.ReadBy == nil {
		m.ReadBy = []Role{}
	}
	if m.AttachmentRef != nil {
		ref := *m.AttachmentRef
		m.AttachmentRef = &ref
	}
	return m
}
