package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/trade-indicators/internal/config"
	"github.com/couchcryptid/trade-indicators/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes normalized observations to a Kafka topic.
// It implements pipeline.Sink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic. Messages are
// hash-partitioned by key so every (country, year) lands on one partition.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger}
}

func (w *Writer) Name() string { return "kafka" }

// Deliver serializes and publishes every observation in a single
// WriteMessages call.
func (w *Writer) Deliver(ctx context.Context, indicator string, rows []domain.Observation) error {
	if len(rows) == 0 {
		return nil
	}
	ingestedAt := domain.Now()
	msgs := make([]kafkago.Message, len(rows))
	for i := range rows {
		msg, err := serializeToMessage(indicator, rows[i], ingestedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), w.writer.Topic, err)
	}
	w.logger.Debug("observations published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// ObservationMessage is the JSON value of each published message.
type ObservationMessage struct {
	Indicator string `json:"indicator"`
	domain.Observation
}

// serializeToMessage marshals an observation into a Kafka message keyed by
// its country and year.
func serializeToMessage(indicator string, o domain.Observation, ingestedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(ObservationMessage{Indicator: indicator, Observation: o})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize observation %s: %w", o.Key(), err)
	}
	return kafkago.Message{
		Key:   []byte(o.Key()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "indicator", Value: []byte(indicator)},
			{Key: "ingested_at", Value: []byte(ingestedAt.Format(time.RFC3339))},
		},
	}, nil
}
