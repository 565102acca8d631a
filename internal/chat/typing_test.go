package chat

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestTyping_StartAndStop(t *testing.T) {
	req := require.New(t)
	tr := NewTypingTracker(5 * time.Second)
	u1, u2 := uuid.New(), uuid.New()
	channelID := uuid.New()

	tr.Start(u1, channelID)
	tr.Start(u2, channelID)

	// Each caller sees the others, never themselves
	req.ElementsMatch([]uuid.UUID{u2}, tr.Typers(channelID, u1))
	req.ElementsMatch([]uuid.UUID{u1}, tr.Typers(channelID, u2))

	req.True(tr.Stop(u1, channelID))
	req.Empty(tr.Typers(channelID, u2))

	// Stopping again reports nothing to broadcast
	req.False(tr.Stop(u1, channelID))
}

func TestTyping_ExpiresAfterTTL(t *testing.T) {
	req := require.New(t)
	tr := NewTypingTracker(5 * time.Second)
	now := time.Now()
	tr.now = func() time.Time { return now }
	userID := uuid.New()
	channelID := uuid.New()

	tr.Start(userID, channelID)
	req.Len(tr.Typers(channelID, uuid.Nil), 1)

	// A client that died mid-type disappears once the TTL passes
	now = now.Add(6 * time.Second)
	req.Empty(tr.Typers(channelID, uuid.Nil))
}

func TestTyping_RefreshExtendsTTL(t *testing.T) {
	req := require.New(t)
	tr := NewTypingTracker(5 * time.Second)
	now := time.Now()
	tr.now = func() time.Time { return now }
	userID := uuid.New()
	channelID := uuid.New()

	tr.Start(userID, channelID)
	now = now.Add(4 * time.Second)
	tr.Start(userID, channelID)
	now = now.Add(4 * time.Second)

	// 8s after the first start, but only 4s after the refresh
	req.Len(tr.Typers(channelID, uuid.Nil), 1)
}

func TestTyping_StopAll(t *testing.T) {
	req := require.New(t)
	tr := NewTypingTracker(5 * time.Second)
	userID := uuid.New()
	a, b := uuid.New(), uuid.New()

	tr.Start(userID, a)
	tr.Start(userID, b)

	tr.StopAll(userID, []uuid.UUID{a, b})

	req.Empty(tr.Typers(a, uuid.Nil))
	req.Empty(tr.Typers(b, uuid.Nil))
}
