package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/repository"
)

func (r *ChannelRepo) AppendMessage(ctx context.Context, msg *domain.Message) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		active, expiresAt, err := lockChannel(ctx, tx, msg.ChannelID)
		if err != nil {
			return err
		}
		if !active || !msg.CreatedAt.Before(expiresAt) {
			return repository.ErrChannelInactive
		}

		var seq int64
		if err := tx.QueryRow(ctx,
			`UPDATE chat_channels SET next_seq = next_seq + 1 WHERE id = $1 RETURNING next_seq`,
			msg.ChannelID,
		).Scan(&seq); err != nil {
			return err
		}

		query := `
			INSERT INTO chat_messages (id, channel_id, seq, sender_role, content, content_type, attachment_ref, read_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, '{}', $8)`
		if _, err := tx.Exec(ctx, query,
			int64(msg.ID), msg.ChannelID, seq, string(msg.SenderRole), msg.Content,
			string(msg.ContentType), msg.AttachmentRef, msg.CreatedAt,
		); err != nil {
			return err
		}

		msg.Seq = seq
		msg.ReadBy = []domain.Role{}
		return nil
	})
}

func (r *ChannelRepo) ListMessages(ctx context.Context, channelID uuid.UUID) ([]domain.Message, error) {
	ch, err := r.GetByID(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, repository.ErrNotFound
	}

	query := `
		SELECT id, channel_id, seq, sender_role, content, content_type, attachment_ref, read_by, created_at
		FROM chat_messages
		WHERE channel_id = $1
		ORDER BY seq`
	rows, err := r.pool.Query(ctx, query, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var (
			msg         domain.Message
			id          int64
			senderRole  string
			contentType string
			readBy      []string
		)
		if err := rows.Scan(
			&id, &msg.ChannelID, &msg.Seq, &senderRole, &msg.Content,
			&contentType, &msg.AttachmentRef, &readBy, &msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		msg.ID = domain.MessageID(id)
		msg.SenderRole = domain.Role(senderRole)
		msg.ContentType = domain.ContentKind(contentType)
		msg.ReadBy = make([]domain.Role, len(readBy))
		for i, role := range readBy {
			msg.ReadBy[i] = domain.Role(role)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *ChannelRepo) MarkRead(ctx context.Context, channelID uuid.UUID, ids []domain.MessageID, role domain.Role) error {
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, _, err := lockChannel(ctx, tx, channelID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE chat_messages SET read_by = array_append(read_by, $3::text)
			WHERE channel_id = $1 AND id = ANY($2)
				AND sender_role <> $3::text AND NOT ($3::text = ANY(read_by))`,
			channelID, raw, string(role),
		)
		return err
	})
}

func (r *ChannelRepo) CountUnread(ctx context.Context, profileID uuid.UUID, role domain.Role) (map[uuid.UUID]int, error) {
	column, err := participantColumn(role)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT c.id, COUNT(m.id) FILTER (WHERE m.sender_role <> $2::text AND NOT ($2::text = ANY(m.read_by)))
		FROM chat_channels c
		LEFT JOIN chat_messages m ON m.channel_id = c.id
		WHERE c.` + column + ` = $1
		GROUP BY c.id`

	rows, err := r.pool.Query(ctx, query, profileID, string(role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			id uuid.UUID
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
