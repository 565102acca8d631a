package chat

import (
	"github.com/amittal/traderoom/internal/domain"
	"github.com/google/uuid"
)

// Caller identifies who is attempting a channel operation. Tier must be the
// caller's current subscription tier toward the channel's analyst, resolved
// fresh by the relay before every check.
type Caller struct {
	ID          uuid.UUID
	Role        domain.Role
	DisplayName string
	Tier        domain.Tier
}

// Access is the result of an access check against one channel.
type Access struct {
	HasAccess bool
	CanPost   bool
	IsAnalyst bool // caller owns this channel
	Reason    string
}

// CheckAccess decides whether the caller may read and post in the channel.
// It is a pure function of channel state and caller identity, with no
// caching: subscription status can change between a join and a later send,
// so it runs on every join and every message.
func CheckAccess(ch *domain.Channel, caller Caller) Access {
	if ch == nil || ch.IsDeleted() {
		return Access{Reason: "channel not found"}
	}

	// The owning analyst has full access regardless of tier or read-only flag.
	if caller.Role == domain.RoleAnalyst && ch.AnalystID == caller.ID {
		return Access{HasAccess: true, CanPost: true, IsAnalyst: true}
	}

	// Admins moderate everywhere.
	if caller.Role == domain.RoleAdmin {
		return Access{HasAccess: true, CanPost: !ch.IsReadOnly}
	}

	hasAccess := true
	if !ch.IsCommunity() && ch.MinTier > domain.TierFree && !caller.Tier.AtLeast(ch.MinTier) {
		if !ch.AllowFreeReads {
			return Access{Reason: "subscription tier too low"}
		}
		return Access{HasAccess: true, CanPost: false, Reason: "subscription tier too low"}
	}

	if ch.IsReadOnly {
		return Access{HasAccess: hasAccess, CanPost: false, Reason: "channel is read-only"}
	}

	return Access{HasAccess: hasAccess, CanPost: true}
}
