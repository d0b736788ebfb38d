package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// kafkaPayload is the JSON structure produced to the events topic.
type kafkaPayload struct {
	ID         int64  `json:"ID,omitempty"`
	RecordType string `json:"RecordType"`
	RecordKey  string `json:"RecordKey"`
	Action     string `json:"Action"`
	Timestamp  string `json:"Timestamp"`
}

// KafkaSink publishes entries to a Kafka topic, keyed by record identity so
// per-record ordering survives partitioning.
type KafkaSink struct {
	client *kgo.Client
	topic  string
}

// NewKafkaSink connects a producer to the given brokers and topic.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka sink: %w", err)
	}
	return &KafkaSink{client: client, topic: topic}, nil
}

var _ Sink = (*KafkaSink)(nil)

func (s *KafkaSink) Emit(ctx context.Context, entry Entry) error {
	payload, err := json.Marshal(kafkaPayload{
		ID:         entry.ID,
		RecordType: entry.RecordType,
		RecordKey:  entry.RecordKey,
		Action:     string(entry.Action),
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(entry.RecordType + "/" + entry.RecordKey),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce event: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() {
	s.client.Close()
}
