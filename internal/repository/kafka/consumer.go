package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/Puntos/internal/obs"
	"github.com/NordCoder/Puntos/internal/obs/retry"
)

type Handler func(ctx context.Context, key, value []byte) error

var consumed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "kafka_consumer_messages_total",
	Help: "Messages fetched by consumers, by topic and handler result.",
}, []string{"topic", "result"})

type ConsumerConfig struct {
	Brokers       []string
	GroupID       string
	Topic         string
	FromBeginning bool
	Logger        *zap.Logger
	// HandlerRetry bounds redelivery of a failing message before it is
	// committed and skipped. Zero Attempts means a single try.
	HandlerRetry retry.Policy
}

type Consumer struct {
	reader *kafka.Reader
	log    *zap.Logger
	topic  string
	retry  retry.Policy
	fetch  retry.ExpoJitter
}

func NewConsumer(cfg *ConsumerConfig) *Consumer {
	log := cfg.Logger
	if log == nil {
		log = zap.L()
	}

	start := kafka.LastOffset
	if cfg.FromBeginning {
		start = kafka.FirstOffset
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:               cfg.Brokers,
		GroupID:               cfg.GroupID,
		Topic:                 cfg.Topic,
		StartOffset:           start,
		WatchPartitionChanges: true,
		MinBytes:              1,
		MaxBytes:              1 << 20,
		MaxWait:               time.Second,
		SessionTimeout:        10 * time.Second,
		RebalanceTimeout:      15 * time.Second,
		HeartbeatInterval:     3 * time.Second,
	})

	p := cfg.HandlerRetry
	if p.Name == "" {
		p.Name = "consume_" + cfg.Topic
	}

	return &Consumer{
		reader: r,
		log: log.With(
			zap.String("component", "kafka.consumer"),
			zap.String("topic", cfg.Topic),
			zap.String("group", cfg.GroupID),
		),
		topic: cfg.Topic,
		retry: p,
		fetch: retry.ExpoJitter{Base: 200 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.1},
	}
}

// Consume runs until ctx is canceled. Every fetched message is committed
// once the handler succeeds or its retries are exhausted, so a poison
// message never blocks the partition.
func (c *Consumer) Consume(ctx context.Context, h Handler) error {
	c.log.Info("consumer started")
	defer c.log.Info("consumer stopped")

	failures := 0
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			wait := c.fetch.Next(failures)
			failures++
			if errors.Is(err, io.EOF) {
				c.log.Debug("fetch EOF; retry", zap.Duration("backoff", wait))
			} else {
				c.log.Warn("fetch failed; retry", zap.Error(err), zap.Duration("backoff", wait))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		failures = 0

		err = retry.Do(ctx, func() error { return c.handle(ctx, msg, h) }, c.retry)
		switch {
		case err == nil:
			consumed.WithLabelValues(c.topic, "ok").Inc()
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			consumed.WithLabelValues(c.topic, "failed").Inc()
			c.log.Error("handler failed; skipping message",
				zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset), zap.Error(err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle continues the producer's trace taken from the message headers.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message, h Handler) error {
	mctx := otel.GetTextMapPropagator().Extract(ctx, mapCarrierFromKafka(msg.Headers))
	mctx, span := otel.Tracer("kafka.consumer").Start(mctx, "kafka.consume "+msg.Topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingDestinationName(msg.Topic),
			semconv.MessagingOperationReceive,
		),
	)
	defer span.End()

	if err := h(mctx, msg.Key, msg.Value); err != nil {
		obs.Fail(span, err)
		return err
	}
	return nil
}

func (c *Consumer) Close() error { return c.reader.Close() }
