package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/Puntos/internal/domain/kafka"
	"github.com/NordCoder/Puntos/internal/domain/notification"
	"github.com/NordCoder/Puntos/internal/domain/outbox"
	domain "github.com/NordCoder/Puntos/internal/domain/reminder"
	"github.com/NordCoder/Puntos/internal/obs"
)

// ErrNotApplicable is returned by a strategy that cannot serve this delivery
// at all, as opposed to one that tried and failed.
var ErrNotApplicable = errors.New("delivery strategy not applicable")

// ErrNoLiveSession means the user has no open foreground session.
var ErrNoLiveSession = errors.New("no live session")

type Strategy interface {
	Name() string
	Deliver(ctx context.Context, userID, token string, n domain.Notification) error
}

var (
	deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reminder_deliveries_total",
		Help: "Delivery attempts by strategy and result.",
	}, []string{"strategy", "result"})
	deliveryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reminder_delivery_duration_seconds",
		Help:    "Time spent in one delivery strategy.",
		Buckets: prometheus.DefBuckets,
	}, []string{"strategy"})
)

// PushStrategy sends straight to the established FCM token.
type PushStrategy struct{ Sender notification.PushSender }

func (PushStrategy) Name() string { return "push" }

func (s PushStrategy) Deliver(ctx context.Context, _ string, token string, n domain.Notification) error {
	if token == "" || s.Sender == nil {
		return ErrNotApplicable
	}
	return s.Sender.SendToToken(ctx, token, n.Title, n.Body, n.Icon, n.Link)
}

// Sessions reaches users with an open foreground session.
type Sessions interface {
	Notify(ctx context.Context, userID string, n domain.Notification) error
}

type ForegroundStrategy struct{ Sessions Sessions }

func (ForegroundStrategy) Name() string { return "foreground" }

func (s ForegroundStrategy) Deliver(ctx context.Context, userID, _ string, n domain.Notification) error {
	if s.Sessions == nil {
		return ErrNotApplicable
	}
	return s.Sessions.Notify(ctx, userID, n)
}

// Enqueuer is the write side of the outbox.
type Enqueuer interface {
	Enqueue(ctx context.Context, key string, kind outbox.Kind, data []byte) error
}

// WorkerStrategy hands the notification to the push worker through the outbox.
type WorkerStrategy struct {
	Outbox Enqueuer
	Clock  domain.Clock
}

func (WorkerStrategy) Name() string { return "worker" }

func (s WorkerStrategy) Deliver(ctx context.Context, userID, token string, n domain.Notification) error {
	if s.Outbox == nil {
		return ErrNotApplicable
	}
	now := time.Now()
	if s.Clock != nil {
		now = s.Clock.Now()
	}
	req := kafka.ReminderRequest{
		ID:          uuid.NewString(),
		UserID:      userID,
		Title:       n.Title,
		Body:        n.Body,
		Icon:        n.Icon,
		Link:        n.Link,
		Token:       token,
		RequestedAt: now.UTC(),
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal reminder request: %w", err)
	}
	return s.Outbox.Enqueue(ctx, req.ID, outbox.KindReminderRequested, data)
}

// Deliverer tries its strategies in order and stops at the first success.
type Deliverer struct {
	strategies []Strategy
	log        *zap.Logger
}

func NewDeliverer(log *zap.Logger, strategies ...Strategy) *Deliverer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Deliverer{strategies: strategies, log: log.With(zap.String("component", "reminder.deliverer"))}
}

// NewDefaultDeliverer orders push, then foreground, then worker, leaving out
// what the host cannot do.
func NewDefaultDeliverer(log *zap.Logger, caps domain.Capabilities, push PushStrategy, fg ForegroundStrategy, worker WorkerStrategy) *Deliverer {
	var chain []Strategy
	if caps.SupportsPushChannel {
		chain = append(chain, push)
	}
	chain = append(chain, fg)
	if caps.SupportsBackgroundWorker {
		chain = append(chain, worker)
	}
	return NewDeliverer(log, chain...)
}

// Strategies lists strategy names in delivery order.
func (d *Deliverer) Strategies() []string {
	out := make([]string, 0, len(d.strategies))
	for _, s := range d.strategies {
		out = append(out, s.Name())
	}
	return out
}

// Deliver returns the name of the strategy that succeeded, or an error
// wrapping domain.ErrNotificationDeliveryFailed.
func (d *Deliverer) Deliver(ctx context.Context, userID, token string, n domain.Notification) (string, error) {
	ctx, span := otel.Tracer("reminder.deliverer").Start(ctx, "reminder.deliver",
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()
	log := obs.WithTrace(ctx, d.log).With(zap.String("user_id", userID))

	var errs []error
	for _, s := range d.strategies {
		start := time.Now()
		err := s.Deliver(ctx, userID, token, n)
		deliveryLatency.WithLabelValues(s.Name()).Observe(time.Since(start).Seconds())
		switch {
		case err == nil:
			deliveries.WithLabelValues(s.Name(), "ok").Inc()
			span.SetAttributes(attribute.String("delivery.strategy", s.Name()))
			log.Debug("notification delivered", zap.String("strategy", s.Name()))
			return s.Name(), nil
		case errors.Is(err, ErrNotApplicable):
			deliveries.WithLabelValues(s.Name(), "skipped").Inc()
		default:
			deliveries.WithLabelValues(s.Name(), "error").Inc()
			log.Warn("delivery strategy failed", zap.String("strategy", s.Name()), zap.Error(err))
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}

	err := domain.ErrNotificationDeliveryFailed
	if len(errs) > 0 {
		err = fmt.Errorf("%w: %w", domain.ErrNotificationDeliveryFailed, errors.Join(errs...))
	}
	obs.Fail(span, err)
	return "", err
}
