package chat

import (
	"testing"
	"time"

	"github.com/amittal/traderoom/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newChannel(analystID uuid.UUID, chType domain.ChannelType) *domain.Channel {
	return &domain.Channel{
		ID:        uuid.New(),
		AnalystID: analystID,
		Name:      "test-channel",
		Type:      chType,
		CreatedAt: time.Now(),
	}
}

func TestCheckAccess_DeletedChannel(t *testing.T) {
	req := require.New(t)
	ch := newChannel(uuid.New(), domain.ChannelGeneral)
	now := time.Now()
	ch.DeletedAt = &now

	access := CheckAccess(ch, Caller{ID: uuid.New(), Role: domain.RoleTrader})

	req.False(access.HasAccess)
	req.False(access.CanPost)
	req.Equal("channel not found", access.Reason)
}

func TestCheckAccess_NilChannel(t *testing.T) {
	req := require.New(t)

	access := CheckAccess(nil, Caller{ID: uuid.New(), Role: domain.RoleTrader})

	req.False(access.HasAccess)
}

func TestCheckAccess_OwningAnalyst(t *testing.T) {
	req := require.New(t)
	analystID := uuid.New()

	// Even on a read-only, tier-gated channel the owner posts freely.
	ch := newChannel(analystID, domain.ChannelAnnouncement)
	ch.IsReadOnly = true
	ch.MinTier = domain.TierPremium

	access := CheckAccess(ch, Caller{ID: analystID, Role: domain.RoleAnalyst})

	req.True(access.HasAccess)
	req.True(access.CanPost)
	req.True(access.IsAnalyst)
}

func TestCheckAccess_AnalystRoleDoesNotOwnOtherChannels(t *testing.T) {
	req := require.New(t)
	ch := newChannel(uuid.New(), domain.ChannelGeneral)
	ch.MinTier = domain.TierPro

	// An analyst without a subscription to another analyst's gated channel
	// is treated like any other caller.
	access := CheckAccess(ch, Caller{ID: uuid.New(), Role: domain.RoleAnalyst, Tier: domain.TierFree})

	req.False(access.HasAccess)
	req.False(access.IsAnalyst)
}

func TestCheckAccess_CommunityChannelReadableByAll(t *testing.T) {
	req := require.New(t)
	ch := newChannel(uuid.Nil, domain.ChannelCommunity)

	access := CheckAccess(ch, Caller{ID: uuid.New(), Role: domain.RoleTrader, Tier: domain.TierFree})

	req.True(access.HasAccess)
	req.True(access.CanPost)
}

func TestCheckAccess_TierGate(t *testing.T) {
	analystID := uuid.New()

	tests := []struct {
		name           string
		minTier        domain.Tier
		callerTier     domain.Tier
		allowFreeReads bool
		wantAccess     bool
		wantPost       bool
	}{
		{"tier met", domain.TierBasic, domain.TierBasic, false, true, true},
		{"tier exceeded", domain.TierBasic, domain.TierPremium, false, true, true},
		{"tier too low, no free reads", domain.TierPro, domain.TierBasic, false, false, false},
		{"tier too low, free reads", domain.TierPro, domain.TierFree, true, true, false},
		{"ungated", domain.TierFree, domain.TierFree, false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			ch := newChannel(analystID, domain.ChannelTrading)
			ch.MinTier = tt.minTier
			ch.AllowFreeReads = tt.allowFreeReads

			access := CheckAccess(ch, Caller{ID: uuid.New(), Role: domain.RoleTrader, Tier: tt.callerTier})

			req.Equal(tt.wantAccess, access.HasAccess)
			req.Equal(tt.wantPost, access.CanPost)
		})
	}
}

func TestCheckAccess_ReadOnlyChannel(t *testing.T) {
	req := require.New(t)
	ch := newChannel(uuid.New(), domain.ChannelAnnouncement)
	ch.IsReadOnly = true

	access := CheckAccess(ch, Caller{ID: uuid.New(), Role: domain.RoleTrader, Tier: domain.TierPremium})

	req.True(access.HasAccess)
	req.False(access.CanPost)
}

func TestCheckAccess_AdminModeratesEverywhere(t *testing.T) {
	req := require.New(t)
	ch := newChannel(uuid.New(), domain.ChannelTrading)
	ch.MinTier = domain.TierPremium

	access := CheckAccess(ch, Caller{ID: uuid.New(), Role: domain.RoleAdmin})

	req.True(access.HasAccess)
	req.True(access.CanPost)
}
