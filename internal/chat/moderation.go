package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PermanentMute is the mute duration meaning "until explicitly unmuted".
const PermanentMute = -1 * time.Minute

type moderationKey struct {
	channelID uuid.UUID
	userID    uuid.UUID
}

type MuteState struct {
	Muted     bool
	Permanent bool
	Remaining time.Duration
}

// Moderation holds per-channel mute and ban state. In-memory only: a process
// restart clears everything, an accepted limitation of the single-process
// design. Authorization is the caller's job; this store trusts it.
type Moderation struct {
	mu sync.Mutex
	// zero expiry means permanent
	mutes map[moderationKey]time.Time
	bans  map[moderationKey]string // reason
	now   func() time.Time
}

func NewModeration() *Moderation {
	return &Moderation{
		mutes: make(map[moderationKey]time.Time),
		bans:  make(map[moderationKey]string),
		now:   time.Now,
	}
}

// Mute silences a user in a channel. A negative duration means permanent.
// Re-muting overwrites the previous entry; mutes do not stack.
func (m *Moderation) Mute(channelID, userID uuid.UUID, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := moderationKey{channelID, userID}
	if duration < 0 {
		m.mutes[key] = time.Time{}
		return
	}
	m.mutes[key] = m.now().Add(duration)
}

func (m *Moderation) Unmute(channelID, userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mutes, moderationKey{channelID, userID})
}

// IsMuted reports the user's mute state, lazily removing expired entries.
func (m *Moderation) IsMuted(channelID, userID uuid.UUID) MuteState {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := moderationKey{channelID, userID}
	expiry, ok := m.mutes[key]
	if !ok {
		return MuteState{}
	}
	if expiry.IsZero() {
		return MuteState{Muted: true, Permanent: true}
	}
	remaining := expiry.Sub(m.now())
	if remaining <= 0 {
		delete(m.mutes, key)
		return MuteState{}
	}
	return MuteState{Muted: true, Remaining: remaining}
}

// Ban permanently blocks a user from a channel until explicitly unbanned.
// Idempotent.
func (m *Moderation) Ban(channelID, userID uuid.UUID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bans[moderationKey{channelID, userID}] = reason
}

func (m *Moderation) Unban(channelID, userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bans, moderationKey{channelID, userID})
}

func (m *Moderation) IsBanned(channelID, userID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.bans[moderationKey{channelID, userID}]
	return ok
}
