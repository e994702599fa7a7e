// Package worker delivers recorded notifications to the recipient's devices
// through APNs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"go.uber.org/zap"

	"schedule-service/internal/events"
)

const (
	SubjectPushFailed = "notification.push.failed"
	queueGroup        = "notification-worker"

	defaultLookupAttempts = 3
	defaultRetryDelay     = 2 * time.Second
)

var pushTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "push_notifications_total",
		Help: "Device push attempts by result",
	},
	[]string{"result"},
)

// PushClient is the part of *apns2.Client the worker needs.
type PushClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

type TokenSource interface {
	ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// DeadLetter is published to SubjectPushFailed when an event cannot be delivered.
type DeadLetter struct {
	Event    events.NotificationCreatedEvent `json:"event"`
	Reason   string                          `json:"reason"`
	Attempts int                             `json:"attempts"`
	FailedAt time.Time                       `json:"failed_at"`
}

type Option func(*Worker)

func WithRetry(attempts int, delay time.Duration) Option {
	return func(w *Worker) {
		w.attempts = attempts
		w.retryDelay = delay
	}
}

type Worker struct {
	push       PushClient
	tokens     TokenSource
	dlq        events.Conn
	topic      string
	attempts   int
	retryDelay time.Duration
	logger     *zap.Logger
}

// New builds a worker. A nil push client runs the worker in mock mode: every
// delivery is logged instead of sent.
func New(push PushClient, tokens TokenSource, dlq events.Conn, topic string, logger *zap.Logger, opts ...Option) *Worker {
	w := &Worker{
		push:       push,
		tokens:     tokens,
		dlq:        dlq,
		topic:      topic,
		attempts:   defaultLookupAttempts,
		retryDelay: defaultRetryDelay,
		logger:     logger.Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.attempts < 1 {
		w.attempts = 1
	}
	return w
}

// Subscribe attaches the worker to notification.created. Several worker
// replicas share the subject through one queue group.
func (w *Worker) Subscribe(ctx context.Context, nc *nats.Conn) (*nats.Subscription, error) {
	return nc.QueueSubscribe(events.SubjectNotificationCreated, queueGroup, func(msg *nats.Msg) {
		if err := w.Handle(ctx, msg.Data); err != nil {
			w.logger.Warn("notification not delivered", zap.Error(err))
		}
	})
}

// Handle delivers one notification.created event. Undeliverable events are
// forwarded to the dead letter subject before the error is returned.
func (w *Worker) Handle(ctx context.Context, data []byte) error {
	var event events.NotificationCreatedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		w.logger.Error("malformed notification event", zap.Error(err))
		return fmt.Errorf("decode event: %w", err)
	}

	log := w.logger.With(
		zap.String("notification_id", event.NotificationID.String()),
		zap.String("recipient_id", event.RecipientID.String()),
	)

	tokens, err := w.lookupTokens(ctx, event.RecipientID)
	if err != nil {
		w.deadLetter(event, "token lookup: "+err.Error(), w.attempts)
		return err
	}
	if len(tokens) == 0 {
		log.Info("no device tokens registered")
		return nil
	}

	sent, errs := 0, []error{}
	for _, token := range tokens {
		if err := w.deliver(&event, token); err != nil {
			pushTotal.WithLabelValues("failed").Inc()
			log.Warn("push failed", zap.String("device_token", mask(token)), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		pushTotal.WithLabelValues("sent").Inc()
		sent++
	}

	if sent == 0 {
		err := errors.Join(errs...)
		w.deadLetter(event, err.Error(), 1)
		return err
	}

	log.Info("push delivered", zap.Int("devices", sent), zap.Int("failed", len(errs)))
	return nil
}

func (w *Worker) lookupTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	var lastErr error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		tokens, err := w.tokens.ListTokens(ctx, userID)
		if err == nil {
			return tokens, nil
		}
		lastErr = err
		w.logger.Warn("device token lookup failed",
			zap.String("user_id", userID.String()), zap.Int("attempt", attempt), zap.Error(err))

		if attempt == w.attempts {
			break
		}
		timer := time.NewTimer(w.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("after %d attempts: %w", w.attempts, lastErr)
}

func (w *Worker) deliver(event *events.NotificationCreatedEvent, token string) error {
	notification := &apns2.Notification{
		DeviceToken: token,
		Topic:       w.topic,
		Payload: payload.NewPayload().
			AlertTitle(event.Title).
			AlertBody(event.Message).
			Sound("default").
			Custom("notification_id", event.NotificationID.String()).
			Custom("type", string(event.Type)),
	}

	if w.push == nil {
		w.logger.Info("push sent (mock)", zap.String("device_token", mask(token)))
		return nil
	}

	res, err := w.push.Push(notification)
	if err != nil {
		return err
	}
	if !res.Sent() {
		return fmt.Errorf("apns rejected push: %d %s", res.StatusCode, res.Reason)
	}
	return nil
}

func (w *Worker) deadLetter(event events.NotificationCreatedEvent, reason string, attempts int) {
	body, err := json.Marshal(DeadLetter{Event: event, Reason: reason, Attempts: attempts, FailedAt: time.Now()})
	if err != nil {
		w.logger.Error("marshal dead letter", zap.Error(err))
		return
	}
	if err := w.dlq.Publish(SubjectPushFailed, body); err != nil {
		w.logger.Error("publish dead letter", zap.Error(err))
	}
}

func mask(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "..."
}
