package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type TopicSpec struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	MaxWait           time.Duration
}

func (s TopicSpec) withDefaults() TopicSpec {
	s.NumPartitions = max(s.NumPartitions, 1)
	s.ReplicationFactor = max(s.ReplicationFactor, 1)
	if s.MaxWait <= 0 {
		s.MaxWait = 5 * time.Second
	}
	return s
}

// EnsureTopic creates the topic when missing and waits until the cluster
// reports at least one partition for it. An existing topic is not an error.
func EnsureTopic(ctx context.Context, brokers []string, spec TopicSpec, log *zap.Logger) error {
	if len(brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	if log == nil {
		log = zap.NewNop()
	}
	spec = spec.withDefaults()
	log = log.With(zap.String("topic", spec.Name))

	client := &kafka.Client{Addr: kafka.TCP(brokers...), Timeout: spec.MaxWait}

	resp, err := client.CreateTopics(ctx, &kafka.CreateTopicsRequest{
		Topics: []kafka.TopicConfig{{
			Topic:             spec.Name,
			NumPartitions:     spec.NumPartitions,
			ReplicationFactor: spec.ReplicationFactor,
		}},
	})
	if err != nil {
		log.Warn("create topic request failed", zap.Error(err))
		return fmt.Errorf("create topic %s: %w", spec.Name, err)
	}
	if terr := resp.Errors[spec.Name]; terr != nil && !errors.Is(terr, kafka.TopicAlreadyExists) {
		log.Warn("create topic rejected", zap.Error(terr))
		return fmt.Errorf("create topic %s: %w", spec.Name, terr)
	}

	deadline := time.Now().Add(spec.MaxWait)
	for {
		if topicReady(ctx, client, spec.Name) {
			log.Info("topic ready")
			return nil
		}
		if time.Now().After(deadline) {
			log.Warn("topic not confirmed ready in time")
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func topicReady(ctx context.Context, client *kafka.Client, name string) bool {
	md, err := client.Metadata(ctx, &kafka.MetadataRequest{Topics: []string{name}})
	if err != nil {
		return false
	}
	for _, t := range md.Topics {
		if t.Name == name && t.Error == nil && len(t.Partitions) > 0 {
			return true
		}
	}
	return false
}
