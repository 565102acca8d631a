package repository

import (
	"context"
	"time"

	"github.com/amittal/traderoom/internal/domain"
	"github.com/google/uuid"
)

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type ChannelRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error)
	// UpdateActiveMembers is a best-effort denormalized counter write;
	// callers log failures and carry on.
	UpdateActiveMembers(ctx context.Context, channelID uuid.UUID, count int) error
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	ListRecent(ctx context.Context, channelID uuid.UUID, limit, offset int) ([]domain.Message, error)
	ListPinned(ctx context.Context, channelID uuid.UUID) ([]domain.Message, error)
	SoftDelete(ctx context.Context, id, actorID uuid.UUID, reason string) error
	// RecentMessageTimes returns the send times of the user's messages in
	// the given channel within the trailing window, oldest first. It backs
	// the rate limiter.
	RecentMessageTimes(ctx context.Context, userID, channelID uuid.UUID, window time.Duration) ([]time.Time, error)
}

type SubscriptionRepository interface {
	// ActiveTier returns the caller's current subscription tier toward the
	// given analyst, or TierFree when no active subscription exists.
	ActiveTier(ctx context.Context, userID, analystID uuid.UUID) (domain.Tier, error)
}
