package pushworker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/NordCoder/Puntos/internal/domain/kafka"
	"github.com/NordCoder/Puntos/internal/domain/notification"
	"github.com/NordCoder/Puntos/internal/obs"
	"github.com/NordCoder/Puntos/internal/obs/retry"
	"github.com/NordCoder/Puntos/internal/services/push-worker/repo"
)

const (
	ChannelPush  = "push"
	ChannelInbox = "inbox"
)

var (
	mPushed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "push_worker_pushes_sent_total",
		Help: "Reminders delivered through FCM",
	})
	mPushFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "push_worker_push_failures_total",
		Help: "Reminders whose push failed after retries and fell back to the inbox",
	})
	mDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "push_worker_duplicates_total",
		Help: "Redelivered reminder requests that were already stored",
	})
)

type Handler struct {
	Push  notification.PushSender
	Inbox repo.Inbox
	Clock notification.Clock
	Retry retry.Policy
	Log   *zap.Logger
}

// notificationID is stable across redeliveries of the same request.
func notificationID(reqID string) uuid.UUID {
	if id, err := uuid.Parse(reqID); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(reqID))
}

// HandleReminder pushes the reminder when the request carries a device token
// and records it in the user's inbox either way.
func (h *Handler) HandleReminder(ctx context.Context, req kafka.ReminderRequest) error {
	log := obs.WithTrace(ctx, h.Log).With(zap.String("request_id", req.ID), zap.String("user_id", req.UserID))

	channel := ChannelInbox
	if req.Token != "" && h.Push != nil {
		err := retry.Do(ctx, func() error {
			return h.Push.SendToToken(ctx, req.Token, req.Title, req.Body, req.Icon, req.Link)
		}, h.Retry)
		switch {
		case err == nil:
			channel = ChannelPush
			mPushed.Inc()
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			mPushFailed.Inc()
			log.Warn("push failed, keeping inbox copy", zap.Error(err))
		}
	}

	n := &notification.Notification{
		ID:        notificationID(req.ID),
		UserID:    req.UserID,
		Title:     req.Title,
		Body:      req.Body,
		Icon:      req.Icon,
		Link:      req.Link,
		Channel:   channel,
		CreatedAt: h.Clock.Now().UTC(),
	}
	stored, err := h.Inbox.Save(ctx, n)
	if err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	if !stored {
		mDuplicates.Inc()
		log.Debug("reminder already stored")
		return nil
	}
	log.Info("reminder handled", zap.String("channel", channel))
	return nil
}
