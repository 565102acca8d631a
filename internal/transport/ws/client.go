package ws

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/amittal/traderoom/internal/domain"
	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	eventTimeout = 10 * time.Second
	sendBufSize  = 256
)

// Client represents a single authenticated WebSocket connection. The relay
// owns it: created on handshake, destroyed on disconnect.
type Client struct {
	relay *Relay
	conn  *websocket.Conn

	userID      uuid.UUID
	role        domain.Role
	username    string
	displayName string

	connectedAt time.Time
	lastActive  atomic.Int64 // unix seconds

	send chan []byte
	done chan struct{}
}

func NewClient(relay *Relay, conn *websocket.Conn, id *Identity) *Client {
	c := &Client{
		relay:       relay,
		conn:        conn,
		userID:      id.UserID,
		role:        id.Role,
		username:    id.Username,
		displayName: id.DisplayName,
		connectedAt: time.Now(),
		send:        make(chan []byte, sendBufSize),
		done:        make(chan struct{}),
	}
	c.touch()
	return c
}

func (c *Client) touch() {
	c.lastActive.Store(time.Now().Unix())
}

// LastActive returns the time of the connection's most recent inbound event.
func (c *Client) LastActive() time.Time {
	return time.Unix(c.lastActive.Load(), 0)
}

// ReadPump reads events from the WebSocket and dispatches them in order.
// Per-connection events are FIFO; no ordering holds across connections.
func (c *Client) ReadPump() {
	defer func() {
		c.relay.Unregister(c)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var event Event
		err := wsjson.Read(context.Background(), c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				c.relay.log.Debug("client disconnected", "user_id", c.userID)
			} else {
				c.relay.log.Debug("read error", "user_id", c.userID, "err", err)
			}
			return
		}

		c.touch()
		c.handleEvent(&event)
	}
}

// WritePump writes queued events to the WebSocket and keeps the heartbeat.
// A failed ping is the transport-level idle timeout; the deferred close
// tears the connection down exactly like a client-initiated disconnect.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				c.relay.log.Debug("write error", "user_id", c.userID, "err", err)
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				c.relay.log.Debug("ping error", "user_id", c.userID, "err", err)
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleEvent routes one inbound event. The switch is exhaustive over the
// client→server event set; anything else is answered with an error event.
// Store calls get a bounded context so a stalled lookup cannot wedge the
// connection's event loop.
func (c *Client) handleEvent(event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	switch event.Type {
	case EventTypeJoinChannel:
		var p ChannelPayload
		if !c.decode(event.Payload, &p) {
			return
		}
		c.relay.handleJoinChannel(ctx, c, p)

	case EventTypeLeaveChannel:
		var p ChannelPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil || p.ChannelID == uuid.Nil {
			return // silent no-op on bad input
		}
		c.relay.handleLeaveChannel(ctx, c, p)

	case EventTypeSendMessage:
		var p SendMessagePayload
		if !c.decode(event.Payload, &p) {
			return
		}
		c.relay.handleSendMessage(ctx, c, p)

	case EventTypeTypingStart:
		var p ChannelPayload
		if !c.decode(event.Payload, &p) {
			return
		}
		c.relay.handleTypingStart(c, p)

	case EventTypeTypingStop:
		var p ChannelPayload
		if !c.decode(event.Payload, &p) {
			return
		}
		c.relay.handleTypingStop(c, p)

	case EventTypeDeleteMessage:
		var p DeleteMessagePayload
		if !c.decode(event.Payload, &p) {
			return
		}
		c.relay.handleDeleteMessage(ctx, c, p)

	case EventTypeMuteUser:
		var p MuteUserPayload
		if !c.decode(event.Payload, &p) {
			return
		}
		c.relay.handleMuteUser(ctx, c, p)

	case EventTypeUnmuteUser:
		var p ModerationTargetPayload
		if !c.decode(event.Payload, &p) {
			return
		}
		c.relay.handleUnmuteUser(ctx, c, p)

	case EventTypeBanUser:
		var p BanUserPayload
		if !c.decode(event.Payload, &p) {
			return
		}
		c.relay.handleBanUser(ctx, c, p)

	case EventTypeUnbanUser:
		var p ModerationTargetPayload
		if !c.decode(event.Payload, &p) {
			return
		}
		c.relay.handleUnbanUser(ctx, c, p)

	case EventTypeGetOnlineUsers:
		var p ChannelPayload
		if !c.decode(event.Payload, &p) {
			return
		}
		c.relay.handleGetOnlineUsers(ctx, c, p)

	case EventTypePresenceUpdate:
		c.relay.handlePresenceUpdate(c)

	case EventTypePing:
		c.sendEvent(EventTypePong, nil, nil)

	default:
		c.sendError(CodeUnknownEvent, "unknown event type: "+event.Type)
	}
}

// decode unmarshals and validates an inbound payload, answering with an
// error event on failure.
func (c *Client) decode(raw json.RawMessage, p any) bool {
	if err := json.Unmarshal(raw, p); err != nil {
		c.sendError(CodeInvalidPayload, "malformed payload")
		return false
	}
	if err := validate.Struct(p); err != nil {
		c.sendError(CodeInvalidPayload, "invalid payload: "+err.Error())
		return false
	}
	return true
}

// sendEvent queues an event directly to this connection, bypassing the
// relay's fan-out. Non-blocking: a full buffer drops the event.
func (c *Client) sendEvent(eventType string, channelID *uuid.UUID, payload any) {
	evt, err := NewEvent(eventType, channelID, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) sendError(code, message string) {
	c.sendEvent(EventTypeError, nil, ErrorPayload{Code: code, Message: message})
}
