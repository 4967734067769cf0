package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/couchcryptid/airwatch/internal/adapter/airservice"
	httpadapter "github.com/couchcryptid/airwatch/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/airwatch/internal/adapter/kafka"
	redisadapter "github.com/couchcryptid/airwatch/internal/adapter/redis"
	"github.com/couchcryptid/airwatch/internal/camera"
	"github.com/couchcryptid/airwatch/internal/config"
	"github.com/couchcryptid/airwatch/internal/credential"
	"github.com/couchcryptid/airwatch/internal/domain"
	"github.com/couchcryptid/airwatch/internal/forecast"
	"github.com/couchcryptid/airwatch/internal/live"
	"github.com/couchcryptid/airwatch/internal/mapview"
	"github.com/couchcryptid/airwatch/internal/observability"
	"github.com/couchcryptid/airwatch/internal/position"
	"github.com/couchcryptid/airwatch/internal/route"
	"github.com/couchcryptid/airwatch/internal/shell"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
)

// readiness reports ready only when every check passes.
type readiness []interface {
	CheckReadiness(ctx context.Context) error
}

func (r readiness) CheckReadiness(ctx context.Context) error {
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Upstream service.
	client := airservice.NewClient(airservice.Options{
		BaseURL:         cfg.ServiceURL,
		Timeout:         cfg.ServiceTimeout,
		MaxRetries:      cfg.ServiceMaxRetries,
		BreakerFailures: cfg.ServiceBreakerFailures,
	}, logger, metrics)
	stations := airservice.NewCachedStations(client, cfg.StationCacheSize, metrics)
	ready := readiness{client}

	// Credential store.
	var kv credential.KV = credential.NewMemoryKV()
	var redisKV *redisadapter.KV
	if cfg.RedisAddr != "" {
		redisKV = redisadapter.NewKV(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		kv = redisKV
		ready = append(ready, redisKV)
		logger.Info("credential store on redis", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
	} else {
		logger.Info("credential store in memory")
	}
	creds := credential.NewStore(kv, logger)

	// Position feed.
	source, push, reader, err := newPositionSource(cfg, clock, logger)
	if err != nil {
		logger.Error("failed to create position source", "error", err)
		os.Exit(1)
	}
	feed := position.NewFeed(source, logger)

	// Live data, optionally mirrored to Kafka.
	var publisher live.Publisher
	var writer *kafkaadapter.SnapshotWriter
	if cfg.SnapshotPublishEnabled {
		writer = kafkaadapter.NewSnapshotWriter(cfg, logger)
		publisher = writer
		logger.Info("snapshot publishing enabled", "topic", cfg.KafkaSnapshotTopic)
	}
	orchestrator := live.NewOrchestrator(feed, client, publisher, cfg.LiveFetchTimeout, logger, metrics)

	// Route planner and map.
	renderer := mapview.NewRenderer()
	planner := route.NewPlanner(client, renderer, logger, metrics)

	// Forecast.
	forecasts := forecast.NewService(client, orchestrator, cfg.ForecastRefreshInterval, cfg.ServiceTimeout, logger, metrics)
	probeFeatures(ctx, client, forecasts, cfg.ServiceTimeout, logger)
	if err := forecasts.Start(); err != nil {
		logger.Error("failed to schedule forecast refresh", "error", err)
		os.Exit(1)
	}

	dashboard := shell.New(ctx, shell.Deps{
		Credentials: creds,
		Live:        orchestrator,
		Planner:     planner,
		Renderer:    renderer,
		Forecast:    forecasts,
		Stations:    stations,
		Camera:      camera.UnavailableDevice{},
		Clock:       clock,
	}, logger)

	routes := httpadapter.Routes{Dashboard: dashboard, Clock: clock}
	if push != nil {
		routes.Positions = push
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, routes, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	dashboard.Logout()
	forecasts.Stop()
	if reader != nil {
		if err := reader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if redisKV != nil {
		if err := redisKV.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// newPositionSource builds the configured source. push is set only for the
// push source and reader only for the Kafka source.
func newPositionSource(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) (position.Source, *position.PushSource, *kafkaadapter.PositionReader, error) {
	switch cfg.PositionSource {
	case config.PositionSourcePush:
		push := position.NewPushSource(16)
		logger.Info("position source: push")
		return push, push, nil, nil
	case config.PositionSourceStatic:
		coords := domain.Coords{Lat: cfg.StaticLat, Lon: cfg.StaticLon}
		logger.Info("position source: static", "lat", coords.Lat, "lon", coords.Lon, "interval", cfg.StaticInterval)
		return position.NewStaticSource([]domain.Coords{coords}, cfg.StaticInterval, clock), nil, nil, nil
	case config.PositionSourceKafka:
		reader := kafkaadapter.NewPositionReader(cfg, logger)
		logger.Info("position source: kafka", "topic", cfg.KafkaPositionTopic, "group_id", cfg.KafkaGroupID)
		return reader, nil, reader, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown position source %q", cfg.PositionSource)
	}
}

// probeFeatures asks the service which optional features it serves. The
// forecast stays enabled when the probe fails.
func probeFeatures(ctx context.Context, client *airservice.Client, forecasts *forecast.Service, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	features, err := client.FeatureStatus(ctx)
	if err != nil {
		logger.Warn("feature status probe failed", "error", err)
		return
	}
	forecasts.SetAvailable(features.Forecast)
	logger.Info("feature status", "forecast", features.Forecast)
}
