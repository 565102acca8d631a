package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tier is a subscription level. Higher values unlock more channels.
type Tier int

const (
	TierFree    Tier = 0
	TierBasic   Tier = 1
	TierPro     Tier = 2
	TierPremium Tier = 3
)

func (t Tier) AtLeast(min Tier) bool {
	return t >= min
}

// Subscription links a trader to an analyst's paid channels. Only active,
// unexpired subscriptions count toward channel tier gates.
type Subscription struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	AnalystID uuid.UUID  `json:"analyst_id"`
	Tier      Tier       `json:"tier"`
	Status    string     `json:"status"` // "active", "cancelled", "expired"
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
