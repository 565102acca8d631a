package ws

import (
	"encoding/json"
	"time"

	"github.com/amittal/traderoom/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Event types - Client → Server
const (
	EventTypeJoinChannel    = "join_channel"
	EventTypeLeaveChannel   = "leave_channel"
	EventTypeSendMessage    = "send_message"
	EventTypeTypingStart    = "typing_start"
	EventTypeTypingStop     = "typing_stop"
	EventTypeDeleteMessage  = "delete_message"
	EventTypeMuteUser       = "mute_user"
	EventTypeUnmuteUser     = "unmute_user"
	EventTypeBanUser        = "ban_user"
	EventTypeUnbanUser      = "unban_user"
	EventTypeGetOnlineUsers = "get_online_users"
	EventTypePresenceUpdate = "presence_update"
	EventTypePing           = "ping"
)

// Event types - Server → Client
const (
	EventTypeChannelJoined     = "channel_joined"
	EventTypeUserJoined        = "user_joined"
	EventTypeUserLeft          = "user_left"
	EventTypeMessage           = "message"
	EventTypeMessageDeleted    = "message_deleted"
	EventTypeTypingIndicator   = "typing_indicator"
	EventTypeTypingStopped     = "typing_stopped"
	EventTypeUserMuted         = "user_muted"
	EventTypeUserBanned        = "user_banned"
	EventTypeRateLimitExceeded = "rate_limit_exceeded"
	EventTypeRateLimitWarning  = "rate_limit_warning"
	EventTypeOnlineUsers       = "online_users"
	EventTypeUserOnline        = "user_online"
	EventTypeUserOffline       = "user_offline"
	EventTypePong              = "pong"
	EventTypeError             = "error"
)

// Error codes carried by EventTypeError.
const (
	CodeInvalidPayload = "INVALID_PAYLOAD"
	CodeUnknownEvent   = "UNKNOWN_EVENT"
	CodeNotFound       = "NOT_FOUND"
	CodeAccessDenied   = "ACCESS_DENIED"
	CodeUpstream       = "UPSTREAM_FAILURE"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type      string          `json:"type"`
	ChannelID *uuid.UUID      `json:"channel_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

var validate = validator.New()

// --- Client → Server payloads ---

type ChannelPayload struct {
	ChannelID uuid.UUID `json:"channel_id" validate:"required"`
}

type SendMessagePayload struct {
	ChannelID uuid.UUID  `json:"channel_id" validate:"required"`
	Content   string     `json:"content" validate:"required"`
	Type      string     `json:"type,omitempty"`
	ReplyTo   *uuid.UUID `json:"reply_to,omitempty"`
}

type DeleteMessagePayload struct {
	ChannelID uuid.UUID `json:"channel_id" validate:"required"`
	MessageID uuid.UUID `json:"message_id" validate:"required"`
}

type MuteUserPayload struct {
	ChannelID       uuid.UUID `json:"channel_id" validate:"required"`
	UserID          uuid.UUID `json:"user_id" validate:"required"`
	DurationMinutes int       `json:"duration_minutes"` // -1 = permanent
}

type BanUserPayload struct {
	ChannelID uuid.UUID `json:"channel_id" validate:"required"`
	UserID    uuid.UUID `json:"user_id" validate:"required"`
	Reason    string    `json:"reason,omitempty"`
}

type ModerationTargetPayload struct {
	ChannelID uuid.UUID `json:"channel_id" validate:"required"`
	UserID    uuid.UUID `json:"user_id" validate:"required"`
}

// --- Server → Client payloads ---

type ChannelJoinedPayload struct {
	ChannelID   uuid.UUID        `json:"channel_id"`
	OnlineCount int              `json:"online_count"`
	OnlineUsers []OnlineUser     `json:"online_users"`
	Messages    []domain.Message `json:"messages"`
	Pinned      []domain.Message `json:"pinned_messages"`
}

type UserJoinedPayload struct {
	ChannelID   uuid.UUID `json:"channel_id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	OnlineCount int       `json:"online_count"`
}

type UserLeftPayload struct {
	ChannelID   uuid.UUID `json:"channel_id"`
	UserID      uuid.UUID `json:"user_id"`
	OnlineCount int       `json:"online_count"`
}

type MessagePayload struct {
	domain.Message
}

type MessageDeletedPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
	MessageID uuid.UUID `json:"message_id"`
	DeletedBy uuid.UUID `json:"deleted_by"`
}

type TypingIndicatorPayload struct {
	ChannelID   uuid.UUID `json:"channel_id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Typers      []string  `json:"typers"` // up to 5 display names, caller excluded
	Count       int       `json:"count"`
}

type TypingStoppedPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id"`
}

type UserMutedPayload struct {
	ChannelID        uuid.UUID `json:"channel_id"`
	Permanent        bool      `json:"permanent"`
	RemainingMinutes int       `json:"remaining_minutes,omitempty"`
}

type UserBannedPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
	Reason    string    `json:"reason,omitempty"`
}

type RateLimitExceededPayload struct {
	ChannelID         uuid.UUID `json:"channel_id"`
	RetryAfterSeconds int       `json:"retry_after_seconds"`
}

type RateLimitWarningPayload struct {
	ChannelID uuid.UUID `json:"channel_id"`
	Remaining int       `json:"remaining"`
}

type OnlineUser struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
}

type OnlineUsersPayload struct {
	ChannelID uuid.UUID    `json:"channel_id"`
	Users     []OnlineUser `json:"users"`
	Count     int          `json:"count"`
}

type PresencePayload struct {
	UserID uuid.UUID `json:"user_id"`
	Status string    `json:"status"` // "online" | "offline"
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, channelID *uuid.UUID, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		ChannelID: channelID,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}
