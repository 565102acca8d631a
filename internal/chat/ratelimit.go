package chat

import (
	"context"
	"time"

	"github.com/amittal/traderoom/internal/domain"
	"github.com/google/uuid"
)

const rateWindow = 60 * time.Second

// MessageHistory supplies the send times backing the sliding window. The
// store owns the data; only the policy lives here.
type MessageHistory interface {
	RecentMessageTimes(ctx context.Context, userID, channelID uuid.UUID, window time.Duration) ([]time.Time, error)
}

type RateLimitResult struct {
	Limited    bool
	RetryAfter time.Duration // until the oldest message ages out of the window
	Remaining  int
	Warn       bool // caller should emit a non-blocking warning
}

type Limiter struct {
	history      MessageHistory
	defaultLimit int
	analystLimit int
	now          func() time.Time
}

func NewLimiter(history MessageHistory, defaultLimit, analystLimit int) *Limiter {
	return &Limiter{
		history:      history,
		defaultLimit: defaultLimit,
		analystLimit: analystLimit,
		now:          time.Now,
	}
}

// Check applies the sliding 60-second window to an attempted message. The
// attempted message itself is the count+1th, so a window already holding
// `limit` messages rejects it.
func (l *Limiter) Check(ctx context.Context, ch *domain.Channel, caller Caller) (RateLimitResult, error) {
	// An analyst posting announcements in their own channel is never limited.
	if ch.Type == domain.ChannelAnnouncement && caller.Role == domain.RoleAnalyst && ch.AnalystID == caller.ID {
		return RateLimitResult{Remaining: -1}, nil
	}

	limit := l.limitFor(ch, caller)

	times, err := l.history.RecentMessageTimes(ctx, caller.ID, ch.ID, rateWindow)
	if err != nil {
		return RateLimitResult{}, err
	}

	now := l.now()
	count := 0
	oldest := time.Time{}
	for _, ts := range times {
		if now.Sub(ts) > rateWindow {
			continue
		}
		if count == 0 || ts.Before(oldest) {
			oldest = ts
		}
		count++
	}

	if count >= limit {
		retry := oldest.Add(rateWindow).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return RateLimitResult{Limited: true, RetryAfter: retry}, nil
	}

	// The attempted message counts toward the window for warning purposes.
	effective := count + 1
	res := RateLimitResult{Remaining: limit - effective}
	if effective*5 >= limit*4 { // at or past 80% of the limit
		res.Warn = true
	}
	return res, nil
}

func (l *Limiter) limitFor(ch *domain.Channel, caller Caller) int {
	limit := ch.RateLimitPerMin
	if limit == 0 {
		if caller.Role == domain.RoleAnalyst {
			limit = l.analystLimit
		} else {
			limit = l.defaultLimit
		}
	}
	// Zero or negative limits are rejected at channel creation; floor here
	// anyway so a bad row can't wedge the math.
	if limit < 1 {
		limit = 1
	}
	return limit
}
