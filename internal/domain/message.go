package domain

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID        uuid.UUID  `json:"id"`
	ChannelID uuid.UUID  `json:"channel_id"`
	SenderID  uuid.UUID  `json:"sender_id"`
	AnalystID uuid.UUID  `json:"analyst_id"` // owning analyst of the channel at send time
	Content   string     `json:"content"`
	Type      string     `json:"type"` // "text", "trade_idea", "announcement"
	ReplyTo   *uuid.UUID `json:"reply_to,omitempty"`
	IsPinned  bool       `json:"is_pinned"`
	DeletedAt *time.Time `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	// Joined fields
	SenderUsername    string `json:"sender_username,omitempty"`
	SenderDisplayName string `json:"sender_display_name,omitempty"`
	SenderRole        Role   `json:"sender_role,omitempty"`
}
