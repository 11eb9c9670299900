package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// BootstrapConsumer makes sure the topic exists before joining the group.
// A failure to create the topic is logged and not fatal.
func BootstrapConsumer(ctx context.Context, cfg *ConsumerConfig, partitions int, logger *zap.Logger) *Consumer {
	_ = EnsureTopic(ctx, cfg.Brokers, TopicSpec{
		Name:              cfg.Topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
		MaxWait:           5 * time.Second,
	}, logger)

	return NewConsumer(cfg)
}

// BootstrapProducer is the producing-side counterpart of BootstrapConsumer.
func BootstrapProducer(ctx context.Context, brokers []string, topic string, partitions int, logger *zap.Logger) *Producer {
	_ = EnsureTopic(ctx, brokers, TopicSpec{
		Name:              topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
		MaxWait:           5 * time.Second,
	}, logger)

	return NewProducer(brokers, topic).WithLogger(logger)
}
