package hub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"schedule-service/internal/model"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024

	eventJoinRoom   = "joinRoom"
	eventRoomJoined = "roomJoined"
	eventError      = "error"
)

// EventHandler receives the client frames the hub does not handle itself.
type EventHandler interface {
	HandleEvent(ctx context.Context, identity model.Identity, event string, data json.RawMessage) error
}

// Client is one websocket connection. Only the hub loop sends on or closes
// send; replies to the client's own frames go through replies.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	identity model.Identity
	handler  EventHandler
	limiter  *rate.Limiter
	logger   *zap.Logger

	send    chan []byte
	replies chan []byte
}

type inboundFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinRoomRequest struct {
	UserID uuid.UUID `json:"userId"`
}

func newClient(h *Hub, conn *websocket.Conn, identity model.Identity, handler EventHandler) *Client {
	burst := int(h.cfg.MessagesPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		hub:      h,
		conn:     conn,
		identity: identity,
		handler:  handler,
		limiter:  rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSecond), burst),
		logger:   h.logger.With(zap.String("user_id", identity.CallerID.String())),
		send:     make(chan []byte, h.cfg.ClientSendBuffer),
		replies:  make(chan []byte, 8),
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.detach(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		if !c.limiter.Allow() {
			c.reply(eventError, map[string]string{"message": "rate limit exceeded"})
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
			c.reply(eventError, map[string]string{"message": "malformed frame"})
			continue
		}

		c.handleFrame(ctx, frame)
	}
}

func (c *Client) handleFrame(ctx context.Context, frame inboundFrame) {
	if frame.Event == eventJoinRoom {
		var req joinRoomRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.UserID != c.identity.CallerID {
			c.reply(eventError, map[string]string{"message": "cannot join another user's room"})
			return
		}
		if err := c.hub.attach(c); err != nil {
			c.reply(eventError, map[string]string{"message": err.Error()})
			return
		}
		c.reply(eventRoomJoined, map[string]string{"userId": req.UserID.String()})
		return
	}

	if c.handler == nil {
		c.reply(eventError, map[string]string{"message": "unsupported event " + frame.Event})
		return
	}

	if err := c.handler.HandleEvent(ctx, c.identity, frame.Event, frame.Data); err != nil {
		c.reply(eventError, map[string]string{"event": frame.Event, "message": err.Error()})
	}
}

func (c *Client) reply(event string, data any) {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return
	}
	select {
	case c.replies <- payload:
	default:
		c.logger.Warn("reply dropped", zap.String("event", event))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case frame := <-c.replies:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
