package outcomes

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaStore publishes one message per record, keyed by experiment so that an experiment's
// records stay ordered within a partition.
type KafkaStore struct {
	writer messageWriter
}

func NewKafkaStore(brokers []string, topic string) (*KafkaStore, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka outcome store requires at least one broker")
	}
	return &KafkaStore{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Balancer:     &kafka.Hash{},
		},
	}, nil
}

func (s *KafkaStore) Write(ctx context.Context, records []Record) error {
	msgs := make([]kafka.Message, 0, len(records))
	for _, rec := range records {
		value, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrapf(err, "marshal outcome record %s", rec.RequestID)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(rec.ExperimentID),
			Value: value,
			Time:  rec.CreatedAt,
		})
	}
	return errors.Wrapf(s.writer.WriteMessages(ctx, msgs...), "publish %d outcome records", len(msgs))
}

func (s *KafkaStore) Close() error {
	return s.writer.Close()
}

// NoopStore discards every batch. It is used when recording is enabled without a durable store.
type NoopStore struct{}

func (NoopStore) Write(context.Context, []Record) error { return nil }

func (NoopStore) Close() error { return nil }
