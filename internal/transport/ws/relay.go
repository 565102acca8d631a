package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/amittal/traderoom/internal/chat"
	"github.com/amittal/traderoom/internal/domain"
	"github.com/amittal/traderoom/internal/repository"
	"github.com/google/uuid"
)

// RelayOptions carries the tunables the relay needs from config.
type RelayOptions struct {
	MaxMessageLength int
	HistoryLimit     int
}

// Relay is the central event dispatcher: it authenticates connections (via
// the handshake in handler.go), checks access, rate limits and moderation on
// every inbound event, and fans outbound events out to the right rooms. It
// is the sole owner of the presence, typing and moderation state; nothing
// else mutates them.
type Relay struct {
	log  *slog.Logger
	opts RelayOptions

	presence   *chat.Presence
	typing     *chat.TypingTracker
	moderation *chat.Moderation
	limiter    *chat.Limiter

	channels repository.ChannelRepository
	messages repository.MessageRepository
	subs     repository.SubscriptionRepository

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client

	broadcast chan *broadcastMsg
}

// broadcastMsg targets either one user (targetID), one channel's room
// (channelID), or every connection (neither set).
type broadcastMsg struct {
	channelID *uuid.UUID
	targetID  *uuid.UUID
	excludeID *uuid.UUID
	data      []byte
}

func NewRelay(
	log *slog.Logger,
	presence *chat.Presence,
	typing *chat.TypingTracker,
	moderation *chat.Moderation,
	limiter *chat.Limiter,
	channels repository.ChannelRepository,
	messages repository.MessageRepository,
	subs repository.SubscriptionRepository,
	opts RelayOptions,
) *Relay {
	return &Relay{
		log:        log,
		opts:       opts,
		presence:   presence,
		typing:     typing,
		moderation: moderation,
		limiter:    limiter,
		channels:   channels,
		messages:   messages,
		subs:       subs,
		clients:    make(map[uuid.UUID]*Client),
		broadcast:  make(chan *broadcastMsg, 256),
	}
}

// Run drains the broadcast queue until the context is cancelled. A single
// fan-out goroutine means every recipient observes events in
// server-processing order. Call in a goroutine.
func (r *Relay) Run(ctx context.Context) {
	for {
		select {
		case msg := <-r.broadcast:
			r.deliver(msg)
		case <-ctx.Done():
			r.log.Info("relay stopped")
			return
		}
	}
}

func (r *Relay) deliver(msg *broadcastMsg) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if msg.targetID != nil {
		if client, ok := r.clients[*msg.targetID]; ok {
			client.trySend(msg.data)
		}
		return
	}

	for _, client := range r.clients {
		if msg.excludeID != nil && client.userID == *msg.excludeID {
			continue
		}
		if msg.channelID != nil && !r.presence.IsMember(client.userID, *msg.channelID) {
			continue
		}
		client.trySend(msg.data)
	}
}

func (c *Client) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
		// Buffer full: the write pump has stalled. Drop the event; the read
		// pump will notice the dead connection and unregister it.
	}
}

// Register adds an authenticated connection and announces it globally.
func (r *Relay) Register(c *Client) {
	r.mu.Lock()
	// A reconnect replaces any stale connection for the same user.
	if old, ok := r.clients[c.userID]; ok && old != c {
		close(old.done)
	}
	r.clients[c.userID] = c
	total := len(r.clients)
	r.mu.Unlock()

	r.presence.Connect(c.userID)
	r.log.Info("user connected", "user_id", c.userID, "role", c.role, "total", total)

	r.broadcastAll(EventTypeUserOnline, PresencePayload{UserID: c.userID, Status: "online"}, &c.userID)
}

// Unregister runs the disconnect cascade: leave every joined channel, stop
// typing everywhere, drop all presence state, announce departure.
func (r *Relay) Unregister(c *Client) {
	r.mu.Lock()
	current, ok := r.clients[c.userID]
	if !ok || current != c {
		// Already replaced by a reconnect; the presence state belongs to the
		// newer connection now.
		r.mu.Unlock()
		return
	}
	delete(r.clients, c.userID)
	total := len(r.clients)
	r.mu.Unlock()

	channels := r.presence.Disconnect(c.userID)
	r.typing.StopAll(c.userID, channels)

	for _, channelID := range channels {
		count := r.presence.OnlineCount(channelID)
		r.broadcastRoom(channelID, EventTypeUserLeft, UserLeftPayload{
			ChannelID:   channelID,
			UserID:      c.userID,
			OnlineCount: count,
		}, nil)
		r.updateActiveMembers(channelID, count)
	}

	r.broadcastAll(EventTypeUserOffline, PresencePayload{UserID: c.userID, Status: "offline"}, &c.userID)

	close(c.send)
	select {
	case <-c.done:
	default:
		close(c.done)
	}

	r.log.Info("user disconnected", "user_id", c.userID, "total", total)
}

// --- event handlers (called from the client read pump, one event at a time
// per connection) ---

func (r *Relay) handleJoinChannel(ctx context.Context, c *Client, p ChannelPayload) {
	ch, caller, ok := r.fetchChannelAndCaller(ctx, c, p.ChannelID)
	if !ok {
		return
	}

	access := chat.CheckAccess(ch, caller)
	if !access.HasAccess {
		c.sendError(r.reasonCode(access.Reason), access.Reason)
		return
	}

	if r.moderation.IsBanned(ch.ID, c.userID) {
		c.sendEvent(EventTypeUserBanned, &ch.ID, UserBannedPayload{ChannelID: ch.ID})
		return
	}

	count, already := r.presence.Join(c.userID, ch.ID)

	history, err := r.messages.ListRecent(ctx, ch.ID, r.opts.HistoryLimit, 0)
	if err != nil {
		r.log.Error("loading history", "channel_id", ch.ID, "err", err)
		history = nil
	}
	pinned, err := r.messages.ListPinned(ctx, ch.ID)
	if err != nil {
		r.log.Error("loading pinned messages", "channel_id", ch.ID, "err", err)
		pinned = nil
	}

	c.sendEvent(EventTypeChannelJoined, &ch.ID, ChannelJoinedPayload{
		ChannelID:   ch.ID,
		OnlineCount: count,
		OnlineUsers: r.onlineUsers(ch.ID),
		Messages:    history,
		Pinned:      pinned,
	})

	if !already {
		r.broadcastRoom(ch.ID, EventTypeUserJoined, UserJoinedPayload{
			ChannelID:   ch.ID,
			UserID:      c.userID,
			DisplayName: c.displayName,
			OnlineCount: count,
		}, &c.userID)
		r.updateActiveMembers(ch.ID, count)
	}
}

func (r *Relay) handleLeaveChannel(_ context.Context, c *Client, p ChannelPayload) {
	if !r.presence.IsMember(c.userID, p.ChannelID) {
		return // idempotent no-op, no response
	}

	count := r.presence.Leave(c.userID, p.ChannelID)
	if r.typing.Stop(c.userID, p.ChannelID) {
		r.broadcastRoom(p.ChannelID, EventTypeTypingStopped, TypingStoppedPayload{
			ChannelID: p.ChannelID,
			UserID:    c.userID,
		}, &c.userID)
	}

	r.broadcastRoom(p.ChannelID, EventTypeUserLeft, UserLeftPayload{
		ChannelID:   p.ChannelID,
		UserID:      c.userID,
		OnlineCount: count,
	}, nil)
	r.updateActiveMembers(p.ChannelID, count)
}

func (r *Relay) handleSendMessage(ctx context.Context, c *Client, p SendMessagePayload) {
	if utf8.RuneCountInString(p.Content) > r.opts.MaxMessageLength {
		c.sendError(CodeInvalidPayload, fmt.Sprintf("message exceeds %d characters", r.opts.MaxMessageLength))
		return
	}

	ch, caller, ok := r.fetchChannelAndCaller(ctx, c, p.ChannelID)
	if !ok {
		return
	}

	access := chat.CheckAccess(ch, caller)
	if !access.HasAccess || !access.CanPost {
		c.sendError(r.reasonCode(access.Reason), accessDeniedMessage(access))
		return
	}

	// Moderation state is consulted after the awaited channel/tier fetches,
	// so a mute or ban landing during the fetch still blocks this message.
	if state := r.moderation.IsMuted(ch.ID, c.userID); state.Muted {
		c.sendEvent(EventTypeUserMuted, &ch.ID, UserMutedPayload{
			ChannelID:        ch.ID,
			Permanent:        state.Permanent,
			RemainingMinutes: int(state.Remaining.Minutes()) + 1,
		})
		return
	}
	if r.moderation.IsBanned(ch.ID, c.userID) {
		c.sendEvent(EventTypeUserBanned, &ch.ID, UserBannedPayload{ChannelID: ch.ID})
		return
	}

	limit, err := r.limiter.Check(ctx, ch, caller)
	if err != nil {
		r.log.Error("rate limit check", "channel_id", ch.ID, "user_id", c.userID, "err", err)
		c.sendError(CodeUpstream, "could not verify rate limit, try again")
		return
	}
	if limit.Limited {
		c.sendEvent(EventTypeRateLimitExceeded, &ch.ID, RateLimitExceededPayload{
			ChannelID:         ch.ID,
			RetryAfterSeconds: int(limit.RetryAfter.Seconds()),
		})
		return
	}

	msgType := p.Type
	if msgType == "" {
		msgType = "text"
	}
	msg := &domain.Message{
		ID:                uuid.New(),
		ChannelID:         ch.ID,
		SenderID:          c.userID,
		AnalystID:         ch.AnalystID,
		Content:           p.Content,
		Type:              msgType,
		ReplyTo:           p.ReplyTo,
		CreatedAt:         time.Now(),
		SenderUsername:    c.username,
		SenderDisplayName: c.displayName,
		SenderRole:        c.role,
	}
	if err := r.messages.Create(ctx, msg); err != nil {
		r.log.Error("persisting message", "channel_id", ch.ID, "user_id", c.userID, "err", err)
		c.sendError(CodeUpstream, "message could not be saved, try again")
		return
	}

	// Sending implies the user stopped typing.
	if r.typing.Stop(c.userID, ch.ID) {
		r.broadcastRoom(ch.ID, EventTypeTypingStopped, TypingStoppedPayload{
			ChannelID: ch.ID,
			UserID:    c.userID,
		}, &c.userID)
	}

	r.broadcastRoom(ch.ID, EventTypeMessage, MessagePayload{Message: *msg}, nil)

	if limit.Warn {
		c.sendEvent(EventTypeRateLimitWarning, &ch.ID, RateLimitWarningPayload{
			ChannelID: ch.ID,
			Remaining: limit.Remaining,
		})
	}
}

func (r *Relay) handleTypingStart(c *Client, p ChannelPayload) {
	if !r.presence.IsMember(c.userID, p.ChannelID) {
		return
	}

	r.typing.Start(c.userID, p.ChannelID)

	others := r.typing.Typers(p.ChannelID, c.userID)
	names := make([]string, 0, 5)
	for _, userID := range others {
		if len(names) == 5 {
			break
		}
		if name, ok := r.displayName(userID); ok {
			names = append(names, name)
		}
	}

	r.broadcastRoom(p.ChannelID, EventTypeTypingIndicator, TypingIndicatorPayload{
		ChannelID:   p.ChannelID,
		UserID:      c.userID,
		DisplayName: c.displayName,
		Typers:      names,
		Count:       len(others),
	}, &c.userID)
}

func (r *Relay) handleTypingStop(c *Client, p ChannelPayload) {
	if !r.presence.IsMember(c.userID, p.ChannelID) {
		return
	}
	if !r.typing.Stop(c.userID, p.ChannelID) {
		return
	}
	// Explicit stopped signal so clients update without polling.
	r.broadcastRoom(p.ChannelID, EventTypeTypingStopped, TypingStoppedPayload{
		ChannelID: p.ChannelID,
		UserID:    c.userID,
	}, &c.userID)
}

func (r *Relay) handleDeleteMessage(ctx context.Context, c *Client, p DeleteMessagePayload) {
	msg, err := r.messages.GetByID(ctx, p.MessageID)
	if err != nil {
		r.log.Error("loading message", "message_id", p.MessageID, "err", err)
		c.sendError(CodeUpstream, "message lookup failed")
		return
	}
	if msg == nil || msg.ChannelID != p.ChannelID {
		c.sendError(CodeNotFound, "message not found")
		return
	}

	if msg.SenderID != c.userID {
		ch, err := r.channels.GetByID(ctx, p.ChannelID)
		if err != nil {
			c.sendError(CodeUpstream, "channel lookup failed")
			return
		}
		if ch == nil || !r.isModerator(c, ch) {
			c.sendError(CodeAccessDenied, "only the sender or the channel analyst can delete this message")
			return
		}
	}

	if err := r.messages.SoftDelete(ctx, p.MessageID, c.userID, ""); err != nil {
		r.log.Error("deleting message", "message_id", p.MessageID, "err", err)
		c.sendError(CodeUpstream, "message could not be deleted")
		return
	}

	r.broadcastRoom(p.ChannelID, EventTypeMessageDeleted, MessageDeletedPayload{
		ChannelID: p.ChannelID,
		MessageID: p.MessageID,
		DeletedBy: c.userID,
	}, nil)
}

func (r *Relay) handleMuteUser(ctx context.Context, c *Client, p MuteUserPayload) {
	if p.DurationMinutes == 0 {
		c.sendError(CodeInvalidPayload, "mute duration must be positive, or -1 for permanent")
		return
	}
	if !r.authorizeModeration(ctx, c, p.ChannelID) {
		return
	}
	r.MuteUserDirect(p.ChannelID, p.UserID, p.DurationMinutes)
}

func (r *Relay) handleUnmuteUser(ctx context.Context, c *Client, p ModerationTargetPayload) {
	if !r.authorizeModeration(ctx, c, p.ChannelID) {
		return
	}
	r.moderation.Unmute(p.ChannelID, p.UserID)
}

func (r *Relay) handleBanUser(ctx context.Context, c *Client, p BanUserPayload) {
	if !r.authorizeModeration(ctx, c, p.ChannelID) {
		return
	}
	r.BanUserDirect(p.ChannelID, p.UserID, p.Reason)
}

func (r *Relay) handleUnbanUser(ctx context.Context, c *Client, p ModerationTargetPayload) {
	if !r.authorizeModeration(ctx, c, p.ChannelID) {
		return
	}
	r.moderation.Unban(p.ChannelID, p.UserID)
}

func (r *Relay) handleGetOnlineUsers(ctx context.Context, c *Client, p ChannelPayload) {
	ch, caller, ok := r.fetchChannelAndCaller(ctx, c, p.ChannelID)
	if !ok {
		return
	}
	if access := chat.CheckAccess(ch, caller); !access.HasAccess {
		c.sendError(CodeAccessDenied, "no access to this channel")
		return
	}

	users := r.onlineUsers(ch.ID)
	c.sendEvent(EventTypeOnlineUsers, &ch.ID, OnlineUsersPayload{
		ChannelID: ch.ID,
		Users:     users,
		Count:     len(users),
	})
}

func (r *Relay) handlePresenceUpdate(c *Client) {
	c.touch()
	for _, channelID := range r.presence.Channels(c.userID) {
		r.broadcastRoom(channelID, EventTypeUserOnline, PresencePayload{
			UserID: c.userID,
			Status: "online",
		}, &c.userID)
	}
}

// --- direct moderation API, shared by in-band events and the REST fallback.
// Callers must have verified the actor is the channel's owning analyst. ---

// MuteUserDirect mutes for the given number of minutes; negative means
// permanent. Zero is rejected at both entry points before reaching here.
func (r *Relay) MuteUserDirect(channelID, userID uuid.UUID, durationMinutes int) {
	duration := chat.PermanentMute
	if durationMinutes > 0 {
		duration = time.Duration(durationMinutes) * time.Minute
	}
	r.moderation.Mute(channelID, userID, duration)

	state := r.moderation.IsMuted(channelID, userID)
	r.broadcastUser(userID, EventTypeUserMuted, UserMutedPayload{
		ChannelID:        channelID,
		Permanent:        state.Permanent,
		RemainingMinutes: durationMinutes,
	})
	r.log.Info("user muted", "channel_id", channelID, "user_id", userID, "duration_min", durationMinutes)
}

func (r *Relay) UnmuteUserDirect(channelID, userID uuid.UUID) {
	r.moderation.Unmute(channelID, userID)
}

// BanUserDirect bans and, if the target is in the room, forcibly removes
// them with a direct notice.
func (r *Relay) BanUserDirect(channelID, userID uuid.UUID, reason string) {
	r.moderation.Ban(channelID, userID, reason)

	r.broadcastUser(userID, EventTypeUserBanned, UserBannedPayload{ChannelID: channelID, Reason: reason})

	if r.presence.IsMember(userID, channelID) {
		count := r.presence.Leave(userID, channelID)
		r.typing.Stop(userID, channelID)
		r.broadcastRoom(channelID, EventTypeUserLeft, UserLeftPayload{
			ChannelID:   channelID,
			UserID:      userID,
			OnlineCount: count,
		}, nil)
		r.updateActiveMembers(channelID, count)
	}
	r.log.Info("user banned", "channel_id", channelID, "user_id", userID, "reason", reason)
}

func (r *Relay) UnbanUserDirect(channelID, userID uuid.UUID) {
	r.moderation.Unban(channelID, userID)
}

// OnlineUsersSnapshot exposes the room's presence to callers outside a live
// connection (administrative tooling, REST fallback).
func (r *Relay) OnlineUsersSnapshot(channelID uuid.UUID) []OnlineUser {
	return r.onlineUsers(channelID)
}

// --- helpers ---

// fetchChannelAndCaller loads fresh channel metadata and resolves the
// caller's current tier toward its analyst. Both are re-read on every
// operation; neither is cached across events.
func (r *Relay) fetchChannelAndCaller(ctx context.Context, c *Client, channelID uuid.UUID) (*domain.Channel, chat.Caller, bool) {
	caller := chat.Caller{ID: c.userID, Role: c.role, DisplayName: c.displayName}

	ch, err := r.channels.GetByID(ctx, channelID)
	if err != nil {
		r.log.Error("loading channel", "channel_id", channelID, "err", err)
		c.sendError(CodeUpstream, "channel lookup failed")
		return nil, caller, false
	}
	if ch == nil || ch.IsDeleted() {
		c.sendError(CodeNotFound, "channel not found")
		return nil, caller, false
	}

	if ch.AnalystID != uuid.Nil && ch.AnalystID != c.userID {
		tier, err := r.subs.ActiveTier(ctx, c.userID, ch.AnalystID)
		if err != nil {
			r.log.Error("loading subscription tier", "user_id", c.userID, "analyst_id", ch.AnalystID, "err", err)
			c.sendError(CodeUpstream, "subscription lookup failed")
			return nil, caller, false
		}
		caller.Tier = tier
	}
	return ch, caller, true
}

// authorizeModeration checks the actor owns the channel (or is an admin)
// before any mute/ban mutation; the moderation store itself trusts callers.
func (r *Relay) authorizeModeration(ctx context.Context, c *Client, channelID uuid.UUID) bool {
	ch, err := r.channels.GetByID(ctx, channelID)
	if err != nil {
		c.sendError(CodeUpstream, "channel lookup failed")
		return false
	}
	if ch == nil || ch.IsDeleted() {
		c.sendError(CodeNotFound, "channel not found")
		return false
	}
	if !r.isModerator(c, ch) {
		c.sendError(CodeAccessDenied, "only the channel analyst can moderate")
		return false
	}
	return true
}

func (r *Relay) isModerator(c *Client, ch *domain.Channel) bool {
	if c.role == domain.RoleAdmin {
		return true
	}
	return c.role == domain.RoleAnalyst && ch.AnalystID == c.userID
}

func (r *Relay) onlineUsers(channelID uuid.UUID) []OnlineUser {
	ids := r.presence.OnlineUsers(channelID)
	users := make([]OnlineUser, 0, len(ids))
	for _, id := range ids {
		name, _ := r.displayName(id)
		users = append(users, OnlineUser{UserID: id, DisplayName: name})
	}
	return users
}

func (r *Relay) displayName(userID uuid.UUID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if client, ok := r.clients[userID]; ok {
		return client.displayName, true
	}
	return "", false
}

// updateActiveMembers is a best-effort denormalized counter write; failure
// never aborts the join/leave flow.
func (r *Relay) updateActiveMembers(channelID uuid.UUID, count int) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := r.channels.UpdateActiveMembers(ctx, channelID, count); err != nil {
		r.log.Warn("updating active member count", "channel_id", channelID, "err", err)
	}
}

func (r *Relay) reasonCode(reason string) string {
	if reason == "channel not found" {
		return CodeNotFound
	}
	return CodeAccessDenied
}

func accessDeniedMessage(a chat.Access) string {
	if a.Reason != "" {
		return a.Reason
	}
	return "you cannot post in this channel"
}

func (r *Relay) broadcastRoom(channelID uuid.UUID, eventType string, payload any, exclude *uuid.UUID) {
	r.enqueue(&broadcastMsg{channelID: &channelID, excludeID: exclude}, eventType, &channelID, payload)
}

func (r *Relay) broadcastUser(userID uuid.UUID, eventType string, payload any) {
	r.enqueue(&broadcastMsg{targetID: &userID}, eventType, nil, payload)
}

func (r *Relay) broadcastAll(eventType string, payload any, exclude *uuid.UUID) {
	r.enqueue(&broadcastMsg{excludeID: exclude}, eventType, nil, payload)
}

func (r *Relay) enqueue(msg *broadcastMsg, eventType string, channelID *uuid.UUID, payload any) {
	evt, err := NewEvent(eventType, channelID, payload)
	if err != nil {
		r.log.Error("marshal event", "type", eventType, "err", err)
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		r.log.Error("marshal event", "type", eventType, "err", err)
		return
	}
	msg.data = data

	select {
	case r.broadcast <- msg:
	default:
		r.log.Warn("broadcast queue full, dropping event", "type", eventType)
	}
}
