package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/amittal/traderoom/internal/domain"
	"github.com/amittal/traderoom/internal/repository"
	"github.com/amittal/traderoom/internal/transport/http/middleware"
	"github.com/amittal/traderoom/internal/transport/ws"
	"github.com/google/uuid"
)

// ModerationHandler is the REST fallback for moderation: the same direct
// operations the relay exposes, for admin tooling and analysts without a
// live connection.
type ModerationHandler struct {
	relay    *ws.Relay
	channels repository.ChannelRepository
	log      *slog.Logger
}

func NewModerationHandler(relay *ws.Relay, channels repository.ChannelRepository, log *slog.Logger) *ModerationHandler {
	return &ModerationHandler{relay: relay, channels: channels, log: log}
}

type muteInput struct {
	UserID          uuid.UUID `json:"user_id"`
	DurationMinutes int       `json:"duration_minutes"`
}

type banInput struct {
	UserID uuid.UUID `json:"user_id"`
	Reason string    `json:"reason"`
}

type targetInput struct {
	UserID uuid.UUID `json:"user_id"`
}

func (h *ModerationHandler) Mute(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var input muteInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}
	if input.DurationMinutes == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_DURATION", "Mute duration must be positive, or -1 for permanent")
		return
	}

	h.relay.MuteUserDirect(channelID, input.UserID, input.DurationMinutes)
	writeJSON(w, http.StatusOK, map[string]string{"status": "muted"})
}

func (h *ModerationHandler) Unmute(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var input targetInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	h.relay.UnmuteUserDirect(channelID, input.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "unmuted"})
}

func (h *ModerationHandler) Ban(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var input banInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	h.relay.BanUserDirect(channelID, input.UserID, input.Reason)
	writeJSON(w, http.StatusOK, map[string]string{"status": "banned"})
}

func (h *ModerationHandler) Unban(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var input targetInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	h.relay.UnbanUserDirect(channelID, input.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "unbanned"})
}

func (h *ModerationHandler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	channelID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	users := h.relay.OnlineUsersSnapshot(channelID)
	writeJSON(w, http.StatusOK, map[string]any{
		"channel_id": channelID,
		"users":      users,
		"count":      len(users),
	})
}

// authorize parses the channel ID and verifies the caller is the channel's
// owning analyst or a platform admin. Identity and role come from the
// middleware-verified token claims; no user lookup is needed here.
func (h *ModerationHandler) authorize(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID := middleware.GetUserID(r.Context())
	role := middleware.GetRole(r.Context())

	channelID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid channel ID")
		return uuid.Nil, false
	}

	ch, err := h.channels.GetByID(r.Context(), channelID)
	if err != nil {
		h.log.Error("loading channel", "channel_id", channelID, "err", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return uuid.Nil, false
	}
	if ch == nil || ch.IsDeleted() {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Channel not found")
		return uuid.Nil, false
	}

	isOwner := role == domain.RoleAnalyst && ch.AnalystID == userID
	if !isOwner && role != domain.RoleAdmin {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Only the channel analyst can moderate")
		return uuid.Nil, false
	}

	return channelID, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
