package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/airwatch/internal/config"
	"github.com/couchcryptid/airwatch/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// SnapshotWriter publishes resolved live snapshots to a Kafka topic.
// It implements live.Publisher.
type SnapshotWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewSnapshotWriter creates a Kafka producer for the configured snapshot topic.
func NewSnapshotWriter(cfg *config.Config, logger *slog.Logger) *SnapshotWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSnapshotTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &SnapshotWriter{writer: w, logger: logger}
}

// Publish writes one snapshot keyed by its coordinates.
func (w *SnapshotWriter) Publish(ctx context.Context, snap domain.LiveSnapshot) error {
	msg, err := serializeToMessage(snap)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	w.logger.Debug("snapshot published", "coords", snap.Coords.String(), "scene", string(snap.Scene()))
	return nil
}

func (w *SnapshotWriter) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a LiveSnapshot into a Kafka message.
func serializeToMessage(snap domain.LiveSnapshot) (kafkago.Message, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize snapshot: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(snap.Coords.String()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "scene", Value: []byte(snap.Scene())},
			{Key: "band", Value: []byte(snap.AQI.Band().Slug())},
			{Key: "fetched_at", Value: []byte(snap.FetchedAt.Format(time.RFC3339))},
		},
	}, nil
}
