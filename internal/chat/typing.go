package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TypingTracker holds the short-lived "currently typing" set per channel.
// Entries expire after the TTL so a client that dies mid-type does not
// appear to type forever.
type TypingTracker struct {
	mu  sync.Mutex
	ttl time.Duration
	// channelID → userID → last refresh
	typers map[uuid.UUID]map[uuid.UUID]time.Time
	now    func() time.Time
}

func NewTypingTracker(ttl time.Duration) *TypingTracker {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &TypingTracker{
		ttl:    ttl,
		typers: make(map[uuid.UUID]map[uuid.UUID]time.Time),
		now:    time.Now,
	}
}

// Start marks the user as typing, refreshing the TTL if already set.
func (t *TypingTracker) Start(userID, channelID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.typers[channelID]; !ok {
		t.typers[channelID] = make(map[uuid.UUID]time.Time)
	}
	t.typers[channelID][userID] = t.now()
}

// Stop clears the user's typing state and reports whether it was set.
func (t *TypingTracker) Stop(userID, channelID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.typers[channelID]
	if !ok {
		return false
	}
	if _, was := set[userID]; !was {
		return false
	}
	delete(set, userID)
	if len(set) == 0 {
		delete(t.typers, channelID)
	}
	return true
}

// StopAll clears the user's typing state in every given channel, used on
// leave and disconnect.
func (t *TypingTracker) StopAll(userID uuid.UUID, channelIDs []uuid.UUID) {
	for _, channelID := range channelIDs {
		t.Stop(userID, channelID)
	}
}

// Typers returns users actively typing in the channel, excluding the caller.
// Expired entries are pruned as a side effect.
func (t *TypingTracker) Typers(channelID, exclude uuid.UUID) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	set, ok := t.typers[channelID]
	if !ok {
		return nil
	}

	cutoff := t.now().Add(-t.ttl)
	var active []uuid.UUID
	for userID, refreshed := range set {
		if refreshed.Before(cutoff) {
			delete(set, userID)
			continue
		}
		if userID != exclude {
			active = append(active, userID)
		}
	}
	if len(set) == 0 {
		delete(t.typers, channelID)
	}
	return active
}
