package chat

import (
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Presence tracks which users are connected and which channels each occupies.
// Entirely volatile: rebuilt from zero on process restart. Both maps mirror
// each other; every mutation updates the pair under one lock.
type Presence struct {
	mu sync.RWMutex
	// channelID → set of online member user IDs
	members map[uuid.UUID]map[uuid.UUID]struct{}
	// userID → set of joined channel IDs
	joined map[uuid.UUID]map[uuid.UUID]struct{}
}

func NewPresence() *Presence {
	return &Presence{
		members: make(map[uuid.UUID]map[uuid.UUID]struct{}),
		joined:  make(map[uuid.UUID]map[uuid.UUID]struct{}),
	}
}

// Connect registers a user with no channel memberships yet.
func (p *Presence) Connect(userID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.joined[userID]; !ok {
		p.joined[userID] = make(map[uuid.UUID]struct{})
	}
}

// Join adds the user to a channel's member set. Idempotent: joining twice
// neither double-counts nor errors. Returns the post-join online count and
// whether the user was already a member.
func (p *Presence) Join(userID, channelID uuid.UUID) (count int, already bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.joined[userID]; !ok {
		p.joined[userID] = make(map[uuid.UUID]struct{})
	}
	if _, already = p.joined[userID][channelID]; !already {
		p.joined[userID][channelID] = struct{}{}
		if _, ok := p.members[channelID]; !ok {
			p.members[channelID] = make(map[uuid.UUID]struct{})
		}
		p.members[channelID][userID] = struct{}{}
	}
	return len(p.members[channelID]), already
}

// Leave removes both directions of the membership relation. Safe to call
// when not joined. Returns the post-leave online count.
func (p *Presence) Leave(userID, channelID uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.leaveLocked(userID, channelID)
	return len(p.members[channelID])
}

// Disconnect removes the user from every channel and drops their entry.
// Returns the channels the user was in, for per-room departure broadcasts.
func (p *Presence) Disconnect(userID uuid.UUID) []uuid.UUID {
	p.mu.Lock()
	defer p.mu.Unlock()

	channels := lo.Keys(p.joined[userID])
	for _, channelID := range channels {
		p.leaveLocked(userID, channelID)
	}
	delete(p.joined, userID)
	return channels
}

func (p *Presence) OnlineCount(channelID uuid.UUID) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.members[channelID])
}

func (p *Presence) OnlineUsers(channelID uuid.UUID) []uuid.UUID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lo.Keys(p.members[channelID])
}

func (p *Presence) IsMember(userID, channelID uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.members[channelID][userID]
	return ok
}

func (p *Presence) IsOnline(userID uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.joined[userID]
	return ok
}

// Channels returns the channels the user currently occupies.
func (p *Presence) Channels(userID uuid.UUID) []uuid.UUID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return lo.Keys(p.joined[userID])
}

func (p *Presence) leaveLocked(userID, channelID uuid.UUID) {
	if set, ok := p.joined[userID]; ok {
		delete(set, channelID)
	}
	if set, ok := p.members[channelID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(p.members, channelID)
		}
	}
}
