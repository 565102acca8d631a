package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/amittal/traderoom/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const messageColumns = `m.id, m.channel_id, m.sender_id, m.analyst_id, m.content, m.type,
	m.reply_to, m.is_pinned, m.deleted_at, m.created_at, u.username, u.display_name, u.role`

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (id, channel_id, sender_id, analyst_id, content, type, reply_to, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.pool.Exec(ctx, query,
		msg.ID, msg.ChannelID, msg.SenderID, msg.AnalystID, msg.Content, msg.Type, msg.ReplyTo, msg.CreatedAt,
	)
	return err
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages m JOIN users u ON m.sender_id = u.id
		WHERE m.id = $1`
	var msg domain.Message
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&msg.ID, &msg.ChannelID, &msg.SenderID, &msg.AnalystID, &msg.Content, &msg.Type,
		&msg.ReplyTo, &msg.IsPinned, &msg.DeletedAt, &msg.CreatedAt,
		&msg.SenderUsername, &msg.SenderDisplayName, &msg.SenderRole,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &msg, err
}

func (r *MessageRepo) ListRecent(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages m JOIN users u ON m.sender_id = u.id
		WHERE m.channel_id = $1 AND m.deleted_at IS NULL
		ORDER BY m.created_at DESC
		LIMIT $2 OFFSET $3`
	return r.listMessages(ctx, query, channelID, limit, offset)
}

func (r *MessageRepo) ListPinned(ctx context.Context, channelID uuid.UUID) ([]domain.Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages m JOIN users u ON m.sender_id = u.id
		WHERE m.channel_id = $1 AND m.is_pinned = TRUE AND m.deleted_at IS NULL
		ORDER BY m.created_at DESC`
	return r.listMessages(ctx, query, channelID)
}

func (r *MessageRepo) SoftDelete(ctx context.Context, id, actorID uuid.UUID, reason string) error {
	query := `UPDATE messages SET deleted_at = $1, deleted_by = $2, delete_reason = $3 WHERE id = $4`
	_, err := r.pool.Exec(ctx, query, time.Now(), actorID, reason, id)
	return err
}

func (r *MessageRepo) RecentMessageTimes(ctx context.Context, userID, channelID uuid.UUID, window time.Duration) ([]time.Time, error) {
	query := `SELECT created_at FROM messages
		WHERE sender_id = $1 AND channel_id = $2 AND created_at > $3
		ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, userID, channelID, time.Now().Add(-window))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		times = append(times, ts)
	}
	return times, rows.Err()
}

func (r *MessageRepo) listMessages(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.SenderID, &msg.AnalystID, &msg.Content,
			&msg.Type, &msg.ReplyTo, &msg.IsPinned, &msg.DeletedAt, &msg.CreatedAt,
			&msg.SenderUsername, &msg.SenderDisplayName, &msg.SenderRole); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
