package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/pkg/validator"
)

// StoredMessage pairs the durable, encrypted record with the plaintext view
// handed back to the caller that appended it.
type StoredMessage struct {
	Stored domain.Message
	View   domain.Message
}

type SendMessageInput struct {
	Content     string             `json:"content"`
	ContentType domain.ContentKind `json:"content_type,omitempty"`
}

// ChannelHistory is what a participant sees of a channel. Participants are
// identified by handle only.
type ChannelHistory struct {
	ChannelID    uuid.UUID             `json:"channel_id"`
	RequestID    uuid.UUID             `json:"request_id"`
	SeekerHandle string                `json:"seeker"`
	ExpertHandle string                `json:"expert"`
	Role         domain.Role           `json:"your_role"`
	Active       bool                  `json:"is_active"`
	ExpiresAt    time.Time             `json:"expires_at"`
	HasRated     bool                  `json:"has_rated"`
	Rating       *domain.RatingOutcome `json:"rating,omitempty"`
	Messages     []domain.Message      `json:"messages"`
}

// AppendMessage encrypts plaintext and appends it to the channel log, then
// hands the plaintext view to the notifier before releasing the channel so
// every listener sees messages in log order. It does not authorize; callers
// reachable from outside go through Send or the attachment flow.
func (s *ChannelService) AppendMessage(
	ctx context.Context,
	channelID uuid.UUID,
	role domain.Role,
	plaintext string,
	kind domain.ContentKind,
	attachmentRef *string,
) (*StoredMessage, error) {
	if !role.Valid() {
		return nil, invalid("sender", "unknown role")
	}
	if !kind.Valid() {
		return nil, invalid("content_type", "unknown content type")
	}

	content, err := s.codec.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypting message: %w", err)
	}
	id, err := s.ids.Next()
	if err != nil {
		return nil, fmt.Errorf("allocating message id: %w", err)
	}

	release, err := s.lock(ctx, channelID)
	if err != nil {
		return nil, err
	}
	defer release()

	msg := domain.Message{
		ID:            id,
		ChannelID:     channelID,
		SenderRole:    role,
		Content:       content,
		ContentType:   kind,
		AttachmentRef: attachmentRef,
		CreatedAt:     s.now(),
	}
	if err := s.channels.AppendMessage(ctx, &msg); err != nil {
		return nil, translate("appending message", err)
	}

	view := msg.Clone()
	view.Content = plaintext
	s.metrics.MessageAppended(string(kind))
	if s.notifier != nil {
		s.notifier.NotifyMessage(&view)
	}
	return &StoredMessage{Stored: msg, View: view}, nil
}

// Send authorizes the caller and appends a text message on their behalf.
func (s *ChannelService) Send(ctx context.Context, ident domain.Identity, channelID uuid.UUID, input SendMessageInput) (*domain.Message, error) {
	if input.ContentType == "" {
		input.ContentType = domain.ContentText
	}
	if err := firstError(validator.ValidateMessage(input.Content, string(input.ContentType))); err != nil {
		return nil, err
	}

	p, err := s.guard.Authorize(ctx, channelID, ident)
	if err != nil {
		return nil, err
	}

	stored, err := s.AppendMessage(ctx, channelID, p.Role, input.Content, input.ContentType, nil)
	if err != nil {
		return nil, err
	}
	return &stored.View, nil
}

// History returns the channel with its decrypted log in append order.
func (s *ChannelService) History(ctx context.Context, ident domain.Identity, channelID uuid.UUID) (*ChannelHistory, error) {
	p, ch, err := s.guard.authorize(ctx, channelID, ident)
	if err != nil {
		return nil, err
	}

	seeker, err := s.handle(ctx, ch.SeekerID)
	if err != nil {
		return nil, err
	}
	expert, err := s.handle(ctx, ch.ExpertID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.channels.ListMessages(ctx, channelID)
	if err != nil {
		return nil, translate("listing messages", err)
	}
	for i := range msgs {
		plain, err := s.codec.Decrypt(msgs[i].Content)
		if err != nil {
			return nil, fmt.Errorf("decrypting message %s: %w", msgs[i].ID, err)
		}
		msgs[i].Content = plain
		if msgs[i].ReadBy == nil {
			msgs[i].ReadBy = []domain.Role{}
		}
	}

	return &ChannelHistory{
		ChannelID:    ch.ID,
		RequestID:    ch.RequestID,
		SeekerHandle: seeker,
		ExpertHandle: expert,
		Role:         p.Role,
		Active:       ch.IsOpen(s.now()),
		ExpiresAt:    ch.ExpiresAt,
		HasRated:     ch.HasRated,
		Rating:       ch.Rating,
		Messages:     msgs,
	}, nil
}

// MarkRead records that the caller's role has read ids. Repeating the call
// changes nothing and unknown ids are ignored.
func (s *ChannelService) MarkRead(ctx context.Context, ident domain.Identity, channelID uuid.UUID, ids []domain.MessageID) error {
	if err := firstError(validator.ValidateMarkRead(len(ids))); err != nil {
		return err
	}
	p, err := s.guard.Authorize(ctx, channelID, ident)
	if err != nil {
		return err
	}

	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil
	}

	release, err := s.lock(ctx, channelID)
	if err != nil {
		return err
	}
	defer release()

	if err := s.channels.MarkRead(ctx, channelID, ids, p.Role); err != nil {
		return translate("marking read", err)
	}
	if s.notifier != nil {
		s.notifier.NotifyRead(channelID, p.Role, ids)
	}
	return nil
}

// List returns the channels the caller takes part in, newest last.
func (s *ChannelService) List(ctx context.Context, ident domain.Identity) ([]domain.Channel, error) {
	if _, err := s.guard.profile(ctx, ident); err != nil {
		return nil, ErrAccessDenied
	}
	channels, err := s.channels.ListByParticipant(ctx, ident.ProfileID, ident.Role)
	if err != nil {
		return nil, translate("listing channels", err)
	}
	now := s.now()
	for i := range channels {
		channels[i].Active = channels[i].IsOpen(now)
	}
	if channels == nil {
		channels = []domain.Channel{}
	}
	return channels, nil
}

func (s *ChannelService) handle(ctx context.Context, profileID uuid.UUID) (string, error) {
	p, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return "", translate("loading profile", err)
	}
	if p == nil {
		return "", fmt.Errorf("profile %s: %w", profileID, ErrNotFound)
	}
	return p.Handle, nil
}

func dedupe(ids []domain.MessageID) []domain.MessageID {
	seen := make(map[domain.MessageID]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// firstError turns validator output into a *ValidationError.
func firstError(errs validator.ValidationErrors) error {
	if !errs.HasErrors() {
		return nil
	}
	field, message := errs.First()
	return invalid(field, message)
}
