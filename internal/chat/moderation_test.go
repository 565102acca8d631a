package chat

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testModeration(start time.Time) (*Moderation, *time.Time) {
	now := start
	m := NewModeration()
	m.now = func() time.Time { return now }
	return m, &now
}

func TestModeration_MuteExpires(t *testing.T) {
	req := require.New(t)
	m, now := testModeration(time.Now())
	channelID, userID := uuid.New(), uuid.New()

	m.Mute(channelID, userID, 1*time.Minute)

	state := m.IsMuted(channelID, userID)
	req.True(state.Muted)
	req.False(state.Permanent)
	req.Greater(state.Remaining, time.Duration(0))

	// After the duration passes the entry is lazily removed
	*now = now.Add(61 * time.Second)
	req.False(m.IsMuted(channelID, userID).Muted)
	req.False(m.IsMuted(channelID, userID).Muted)
}

func TestModeration_PermanentMute(t *testing.T) {
	req := require.New(t)
	m, now := testModeration(time.Now())
	channelID, userID := uuid.New(), uuid.New()

	m.Mute(channelID, userID, PermanentMute)

	// No amount of elapsed time clears it
	*now = now.Add(1000 * time.Hour)
	state := m.IsMuted(channelID, userID)
	req.True(state.Muted)
	req.True(state.Permanent)

	// Only an explicit unmute does
	m.Unmute(channelID, userID)
	req.False(m.IsMuted(channelID, userID).Muted)
}

func TestModeration_RemuteOverwrites(t *testing.T) {
	req := require.New(t)
	m, now := testModeration(time.Now())
	channelID, userID := uuid.New(), uuid.New()

	// Last mute wins; durations do not stack
	m.Mute(channelID, userID, 60*time.Minute)
	m.Mute(channelID, userID, 1*time.Minute)

	*now = now.Add(2 * time.Minute)
	req.False(m.IsMuted(channelID, userID).Muted)
}

func TestModeration_MuteScopedPerChannel(t *testing.T) {
	req := require.New(t)
	m, _ := testModeration(time.Now())
	userID := uuid.New()
	a, b := uuid.New(), uuid.New()

	m.Mute(a, userID, 10*time.Minute)

	req.True(m.IsMuted(a, userID).Muted)
	req.False(m.IsMuted(b, userID).Muted)
}

func TestModeration_BanIdempotent(t *testing.T) {
	req := require.New(t)
	m, now := testModeration(time.Now())
	channelID, userID := uuid.New(), uuid.New()

	m.Ban(channelID, userID, "spam")
	m.Ban(channelID, userID, "spam again")

	req.True(m.IsBanned(channelID, userID))

	// Bans never expire on their own
	*now = now.Add(1000 * time.Hour)
	req.True(m.IsBanned(channelID, userID))

	m.Unban(channelID, userID)
	req.False(m.IsBanned(channelID, userID))
}
