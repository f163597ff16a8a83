package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/laksac24/VeriFy/internal/platform/config"
	dErrors "github.com/laksac24/VeriFy/pkg/domain-errors"
)

// KafkaPublisher produces audit events to a Kafka topic, keyed by subject so
// events about one entity stay ordered within a partition.
type KafkaPublisher struct {
	client *kgo.Client
	logger *slog.Logger
}

func NewKafka(cfg config.KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("build kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, logger: logger}, nil
}

func (p *KafkaPublisher) Emit(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "marshal audit event")
	}
	record := &kgo.Record{
		Key:   []byte(event.Subject),
		Value: payload,
	}
	// Async produce; audit must not add latency to the request path.
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("audit event dropped",
				"action", event.Action,
				"error", err)
		}
	})
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}
