package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/nixlim/pantrycost/internal/analytics"
)

// KafkaSink publishes each report as one message keyed by report ID.
type KafkaSink struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewKafkaSink(brokers []string, topic string, logger *zap.Logger) (*KafkaSink, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Retry.Backoff = 100 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Net.DialTimeout = 30 * time.Second
	cfg.Net.ReadTimeout = 30 * time.Second
	cfg.Net.WriteTimeout = 30 * time.Second

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return newKafkaSink(producer, topic, logger), nil
}

func newKafkaSink(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaSink{producer: producer, topic: topic, logger: logger}
}

// Write blocks until the broker acknowledges. SyncProducer has no context
// support, so ctx is only checked before sending.
func (s *KafkaSink) Write(ctx context.Context, r *analytics.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(r)
	if err != nil {
		return err
	}
	partition, offset, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(r.ID),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		return fmt.Errorf("publishing report %s to %s: %w", r.ID, s.topic, err)
	}
	s.logger.Debug("report published",
		zap.String("report_id", r.ID),
		zap.String("topic", s.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
