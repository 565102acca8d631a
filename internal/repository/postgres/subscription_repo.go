package postgres

import (
	"context"
	"errors"

	"github.com/amittal/traderoom/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *SubscriptionRepo {
	return &SubscriptionRepo{pool: pool}
}

// ActiveTier reads the caller's live subscription toward an analyst. Read
// fresh on every access check; subscription status can change between a join
// and a later send.
func (r *SubscriptionRepo) ActiveTier(ctx context.Context, userID, analystID uuid.UUID) (domain.Tier, error) {
	query := `SELECT tier FROM subscriptions
		WHERE user_id = $1 AND analyst_id = $2 AND status = 'active'
			AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY tier DESC
		LIMIT 1`
	var tier domain.Tier
	err := r.pool.QueryRow(ctx, query, userID, analystID).Scan(&tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TierFree, nil
	}
	return tier, err
}
