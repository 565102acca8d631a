package postgres

import (
	"context"
	"errors"

	"github.com/amittal/traderoom/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ChannelRepo struct {
	pool *pgxpool.Pool
}

func NewChannelRepo(pool *pgxpool.Pool) *ChannelRepo {
	return &ChannelRepo{pool: pool}
}

func (r *ChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	query := `SELECT id, analyst_id, name, type, is_read_only, rate_limit_per_min,
			min_tier_required, allow_free_reads, active_members, created_at, deleted_at
		FROM channels WHERE id = $1`
	var ch domain.Channel
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&ch.ID, &ch.AnalystID, &ch.Name, &ch.Type, &ch.IsReadOnly,
		&ch.RateLimitPerMin, &ch.MinTier, &ch.AllowFreeReads,
		&ch.ActiveMembers, &ch.CreatedAt, &ch.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return &ch, err
}

func (r *ChannelRepo) UpdateActiveMembers(ctx context.Context, channelID uuid.UUID, count int) error {
	_, err := r.pool.Exec(ctx, `UPDATE channels SET active_members = $1 WHERE id = $2`, count, channelID)
	return err
}
