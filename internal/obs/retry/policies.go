package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

func logged(p Policy, log *zap.Logger) Policy {
	if log == nil {
		return p
	}
	name := p.Name
	p.OnAttempt = func(i int, err error) {
		log.Warn("retry", zap.String("op", name), zap.Int("attempt", i+1), zap.Error(err))
	}
	p.OnExhaust = func(err error) {
		if !errors.Is(err, context.Canceled) {
			log.Error("retries exhausted", zap.String("op", name), zap.Error(err))
		}
	}
	return p
}

// OutboxPolicy is used when relaying outbox rows to Kafka.
func OutboxPolicy(log *zap.Logger) Policy {
	return logged(Policy{
		Name:     "outbox_publish",
		Attempts: 6,
		Backoff:  ExpoJitter{Base: 200 * time.Millisecond, Max: 30 * time.Second, Jitter: 0.2},
	}, log)
}

// PushPolicy is used by the push worker around FCM sends.
func PushPolicy(log *zap.Logger, retryable func(error) bool) Policy {
	return logged(Policy{
		Name:      "fcm_send",
		Attempts:  4,
		Backoff:   ExpoJitter{Base: 500 * time.Millisecond, Max: 10 * time.Second, Jitter: 0.2},
		Retryable: retryable,
	}, log)
}

// UpstreamPolicy retries idempotent reads against the loyalty backend.
func UpstreamPolicy(log *zap.Logger, retryable func(error) bool) Policy {
	return logged(Policy{
		Name:      "upstream_get",
		Attempts:  3,
		Backoff:   ExpoJitter{Base: 150 * time.Millisecond, Max: 2 * time.Second, Jitter: 0.1},
		Retryable: retryable,
	}, log)
}

// ConsumePolicy redelivers a failed Kafka message in-process before the
// consumer commits past it. Handlers must be idempotent.
func ConsumePolicy(log *zap.Logger) Policy {
	return logged(Policy{
		Name:     "kafka_consume",
		Attempts: 3,
		Backoff:  ExpoJitter{Base: time.Second, Max: 10 * time.Second, Jitter: 0.2},
	}, log)
}
