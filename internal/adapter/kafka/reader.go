package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/airwatch/internal/config"
	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"
)

// PositionReader consumes device positions from a Kafka topic.
// It implements position.Source.
type PositionReader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewPositionReader creates a Kafka consumer for the configured position topic.
// A new consumer group starts from the oldest retained position.
func NewPositionReader(cfg *config.Config, logger *slog.Logger) *PositionReader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaPositionTopic,
		GroupID:     cfg.KafkaGroupID,
		StartOffset: kafkago.FirstOffset,
		MaxWait:     time.Second,
	})
	return &PositionReader{reader: r, logger: logger}
}

// Next blocks until a decodable position arrives. Malformed messages are
// committed and skipped; broker errors are retried with capped backoff.
func (r *PositionReader) Next(ctx context.Context) (domain.GeoPosition, error) {
	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second

	for {
		msg, err := r.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return domain.GeoPosition{}, ctx.Err()
			}
			r.logger.Error("fetch position message failed", "error", err)
			if !retry.SleepWithContext(ctx, backoff) {
				return domain.GeoPosition{}, ctx.Err()
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
			continue
		}
		backoff = 200 * time.Millisecond

		pos, mapErr := mapMessageToPosition(msg)
		if commitErr := r.reader.CommitMessages(ctx, msg); commitErr != nil {
			r.logger.Warn("commit offset failed", "error", commitErr,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		}
		if mapErr != nil {
			r.logger.Warn("skipping malformed position message", "error", mapErr,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
			continue
		}
		return pos, nil
	}
}

func (r *PositionReader) Close() error {
	return r.reader.Close()
}

type positionMessage struct {
	Lat        *float64  `json:"lat"`
	Lon        *float64  `json:"lon"`
	Accuracy   float64   `json:"accuracy"`
	ObservedAt time.Time `json:"observed_at"`
}

var errInvalidPosition = errors.New("invalid position")

// mapMessageToPosition decodes a position message. A missing observed_at
// falls back to the message timestamp.
func mapMessageToPosition(msg kafkago.Message) (domain.GeoPosition, error) {
	var p positionMessage
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		return domain.GeoPosition{}, fmt.Errorf("decode position: %w", err)
	}
	if p.Lat == nil || p.Lon == nil {
		return domain.GeoPosition{}, fmt.Errorf("%w: lat and lon are required", errInvalidPosition)
	}
	if *p.Lat < -90 || *p.Lat > 90 || *p.Lon < -180 || *p.Lon > 180 {
		return domain.GeoPosition{}, fmt.Errorf("%w: %v,%v out of range", errInvalidPosition, *p.Lat, *p.Lon)
	}

	observed := p.ObservedAt
	if observed.IsZero() {
		observed = msg.Time
	}
	return domain.GeoPosition{
		Coords:     domain.Coords{Lat: *p.Lat, Lon: *p.Lon},
		Accuracy:   p.Accuracy,
		ObservedAt: observed.UTC(),
	}, nil
}
