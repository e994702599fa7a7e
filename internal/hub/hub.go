// Package hub keeps one logical room per user and pushes events to every live
// websocket connection in it. Delivery is best effort: the durable records
// are the source of truth and a missed push is never an error.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Events pushed to clients.
const (
	EventNewSchedule     = "newSchedule"
	EventScheduleUpdated = "scheduleUpdated"
	EventNewFeedback     = "newFeedback"
	EventNewMessage      = "newMessage"
	EventMessageUpdated  = "messageUpdated"
	EventMessageDeleted  = "messageDeleted"
	EventNewNotification = "newNotification"
)

var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
)

var (
	realtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Live websocket connections",
	})
	realtimePushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_push_total",
			Help: "Realtime pushes by event and result",
		},
		[]string{"event", "result"},
	)
)

// Envelope is the frame format on the wire in both directions.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type Config struct {
	// BufferSize bounds pushes waiting for the hub loop.
	BufferSize int
	// ClientSendBuffer bounds frames waiting for one connection's writer.
	ClientSendBuffer int
	// MessagesPerSecond throttles inbound frames per connection.
	MessagesPerSecond float64
}

func DefaultConfig() Config {
	return Config{BufferSize: 256, ClientSendBuffer: 64, MessagesPerSecond: 5}
}

type delivery struct {
	userID uuid.UUID
	event  string
	data   []byte
}

type Hub struct {
	cfg    Config
	logger *zap.Logger

	register   chan *Client
	unregister chan *Client
	outbound   chan delivery
	done       chan struct{}
	running    atomic.Bool

	// rooms is written only by the run loop.
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[*Client]struct{}
}

func New(cfg Config, logger *zap.Logger) *Hub {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.ClientSendBuffer <= 0 {
		cfg.ClientSendBuffer = def.ClientSendBuffer
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = def.MessagesPerSecond
	}

	return &Hub{
		cfg:        cfg,
		logger:     logger.Named("hub"),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan delivery, cfg.BufferSize),
		done:       make(chan struct{}),
		rooms:      make(map[uuid.UUID]map[*Client]struct{}),
	}
}

// Run processes joins, leaves and pushes until ctx is cancelled, then closes
// every connection.
func (h *Hub) Run(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return ErrHubAlreadyRunning
	}
	defer close(h.done)

	h.logger.Info("hub started")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("hub stopped")
			return nil
		case c := <-h.register:
			h.join(c)
		case c := <-h.unregister:
			h.leave(c)
		case d := <-h.outbound:
			h.deliver(d)
		}
	}
}

// Push queues event for every connection in userID's room. It never blocks:
// when the hub is saturated the push is dropped and logged.
func (h *Hub) Push(userID uuid.UUID, event string, payload any) {
	data, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		realtimePushTotal.WithLabelValues(event, "encode_error").Inc()
		h.logger.Error("encode push", zap.String("event", event), zap.Error(err))
		return
	}

	select {
	case h.outbound <- delivery{userID: userID, event: event, data: data}:
	default:
		realtimePushTotal.WithLabelValues(event, "dropped").Inc()
		h.logger.Warn("push dropped, hub buffer full",
			zap.String("event", event), zap.String("user_id", userID.String()))
	}
}

// Online reports whether userID has at least one live connection.
func (h *Hub) Online(userID uuid.UUID) bool {
	return h.ConnectionCount(userID) > 0
}

func (h *Hub) ConnectionCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[userID])
}

func (h *Hub) attach(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.done:
		return ErrHubNotRunning
	}
}

func (h *Hub) detach(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) join(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.identity.CallerID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.identity.CallerID] = room
	}
	if _, already := room[c]; already {
		return
	}
	room[c] = struct{}{}
	realtimeConnections.Inc()

	h.logger.Debug("connection joined room",
		zap.String("user_id", c.identity.CallerID.String()), zap.Int("connections", len(room)))
}

func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.identity.CallerID]
	if !ok {
		return
	}
	if _, member := room[c]; !member {
		return
	}

	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.identity.CallerID)
	}
	close(c.send)
	realtimeConnections.Dec()

	h.logger.Debug("connection left room", zap.String("user_id", c.identity.CallerID.String()))
}

func (h *Hub) deliver(d delivery) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room := h.rooms[d.userID]
	if len(room) == 0 {
		realtimePushTotal.WithLabelValues(d.event, "offline").Inc()
		return
	}

	for c := range room {
		select {
		case c.send <- d.data:
			realtimePushTotal.WithLabelValues(d.event, "delivered").Inc()
		default:
			realtimePushTotal.WithLabelValues(d.event, "dropped").Inc()
			h.logger.Warn("slow connection, frame dropped",
				zap.String("event", d.event), zap.String("user_id", d.userID.String()))
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, room := range h.rooms {
		for c := range room {
			close(c.send)
			realtimeConnections.Dec()
		}
		delete(h.rooms, userID)
	}
}
