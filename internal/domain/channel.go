package domain

import (
	"time"

	"github.com/google/uuid"
)

type ChannelType string

const (
	ChannelAnnouncement ChannelType = "announcement"
	ChannelGeneral      ChannelType = "general"
	ChannelTrading      ChannelType = "trading"
	ChannelIdeas        ChannelType = "ideas"
	ChannelCommunity    ChannelType = "community"
)

type Channel struct {
	ID        uuid.UUID   `json:"id"`
	AnalystID uuid.UUID   `json:"analyst_id"` // uuid.Nil for platform-wide community channels
	Name      string      `json:"name"`
	Type      ChannelType `json:"type"`

	IsReadOnly      bool `json:"is_read_only"`
	RateLimitPerMin int  `json:"rate_limit_per_min"` // 0 = role default
	MinTier         Tier `json:"min_tier_required"`
	AllowFreeReads  bool `json:"allow_free_reads"`

	ActiveMembers int        `json:"active_members"`
	CreatedAt     time.Time  `json:"created_at"`
	DeletedAt     *time.Time `json:"-"`
}

// IsCommunity reports whether the channel is platform-wide rather than
// scoped to a single analyst.
func (c *Channel) IsCommunity() bool {
	return c.Type == ChannelCommunity
}

func (c *Channel) IsDeleted() bool {
	return c.DeletedAt != nil
}
