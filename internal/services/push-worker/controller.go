package pushworker

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/NordCoder/Puntos/internal/domain/kafka"
	kafkax "github.com/NordCoder/Puntos/internal/repository/kafka"
)

var mConsumed = promauto.NewCounter(prometheus.CounterOpts{
	Name: "push_worker_messages_consumed_total",
	Help: "Reminder requests consumed",
})

type Controller struct {
	Log *zap.Logger
	Sub *kafkax.Consumer
	UC  *Handler
}

func (c *Controller) Run(ctx context.Context) error {
	return c.Sub.Consume(ctx, c.handler())
}

func (c *Controller) handler() kafkax.Handler {
	typed := kafkax.ReminderHandler(func(ctx context.Context, req kafka.ReminderRequest) error {
		return c.UC.HandleReminder(ctx, req)
	})
	return func(ctx context.Context, key, value []byte) error {
		mConsumed.Inc()
		err := typed(ctx, key, value)
		if errors.Is(err, kafkax.ErrMalformedReminder) {
			c.Log.Warn("reminder request dropped", zap.ByteString("key", key), zap.Error(err))
			return nil
		}
		return err
	}
}
