package ingest

import (
	"context"
	"io"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"killfeed/internal/config"
	"killfeed/internal/model"
	"killfeed/internal/normalize"
)

// RunKafka consumes raw killmail payloads from a Kafka topic until ctx is
// cancelled. Useful when a crawler fleet fans events out through a broker
// instead of RedisQ.
func RunKafka(ctx context.Context, cfg config.KafkaConfig, regions normalize.RegionLookup, out chan<- model.Killmail, logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger.Info("kafka ingest enabled", "brokers", cfg.Brokers, "topic", cfg.Topic, "group_id", cfg.GroupID)
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	defer reader.Close()
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka read error", "error", err)
			continue
		}
		km, err := normalize.Normalize(ctx, m.Value, regions)
		if err != nil {
			logger.Warn("kafka event rejected", "error", err)
			continue
		}
		Send(ctx, out, km)
	}
}
