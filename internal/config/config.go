package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Position sources.
const (
	PositionSourcePush   = "push"
	PositionSourceStatic = "static"
	PositionSourceKafka  = "kafka"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream air-quality service.
	ServiceURL             string
	ServiceTimeout         time.Duration
	ServiceMaxRetries      int
	ServiceBreakerFailures int
	StationCacheSize       int
	LiveFetchTimeout       time.Duration

	// Position feed.
	PositionSource string
	StaticLat      float64
	StaticLon      float64
	StaticInterval time.Duration

	// Kafka position source and snapshot sink.
	KafkaBrokers           []string
	KafkaPositionTopic     string
	KafkaSnapshotTopic     string
	KafkaGroupID           string
	SnapshotPublishEnabled bool

	// Credential store. Empty RedisAddr keeps the record in memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ForecastRefreshInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	serviceTimeout, err := parsePositiveDuration("AIR_SERVICE_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	liveFetchTimeout, err := parsePositiveDuration("LIVE_FETCH_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	staticInterval, err := parsePositiveDuration("STATIC_INTERVAL", "1m")
	if err != nil {
		return nil, err
	}
	forecastInterval, err := parsePositiveDuration("FORECAST_REFRESH_INTERVAL", "30m")
	if err != nil {
		return nil, err
	}
	if forecastInterval < time.Minute {
		return nil, errors.New("FORECAST_REFRESH_INTERVAL must be at least 1m")
	}

	maxRetries, err := parseInt("AIR_SERVICE_MAX_RETRIES", 3, 0, 10)
	if err != nil {
		return nil, err
	}
	breakerFailures, err := parseInt("AIR_SERVICE_BREAKER_FAILURES", 5, 1, 100)
	if err != nil {
		return nil, err
	}
	redisDB, err := parseInt("REDIS_DB", 0, 0, 15)
	if err != nil {
		return nil, err
	}

	staticLat, err := parseFloat("STATIC_LAT", 20.5937, -90, 90)
	if err != nil {
		return nil, err
	}
	staticLon, err := parseFloat("STATIC_LON", 78.9629, -180, 180)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ServiceURL:             sharedcfg.EnvOrDefault("AIR_SERVICE_URL", "http://localhost:5000"),
		ServiceTimeout:         serviceTimeout,
		ServiceMaxRetries:      maxRetries,
		ServiceBreakerFailures: breakerFailures,
		StationCacheSize:       parseStationCacheSize(),
		LiveFetchTimeout:       liveFetchTimeout,

		PositionSource: sharedcfg.EnvOrDefault("POSITION_SOURCE", PositionSourcePush),
		StaticLat:      staticLat,
		StaticLon:      staticLon,
		StaticInterval: staticInterval,

		KafkaBrokers:           sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaPositionTopic:     sharedcfg.EnvOrDefault("KAFKA_POSITION_TOPIC", "device-positions"),
		KafkaSnapshotTopic:     sharedcfg.EnvOrDefault("KAFKA_SNAPSHOT_TOPIC", "live-snapshots"),
		KafkaGroupID:           sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "airwatch"),
		SnapshotPublishEnabled: os.Getenv("SNAPSHOT_PUBLISH_ENABLED") == "true",

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,

		ForecastRefreshInterval: forecastInterval,
	}

	switch cfg.PositionSource {
	case PositionSourcePush, PositionSourceStatic, PositionSourceKafka:
	default:
		return nil, fmt.Errorf("invalid POSITION_SOURCE %q: want push, static or kafka", cfg.PositionSource)
	}
	if cfg.ServiceURL == "" {
		return nil, errors.New("AIR_SERVICE_URL is required")
	}
	usesKafka := cfg.PositionSource == PositionSourceKafka || cfg.SnapshotPublishEnabled
	if usesKafka && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.PositionSource == PositionSourceKafka && cfg.KafkaPositionTopic == "" {
		return nil, errors.New("KAFKA_POSITION_TOPIC is required")
	}
	if cfg.SnapshotPublishEnabled && cfg.KafkaSnapshotTopic == "" {
		return nil, errors.New("KAFKA_SNAPSHOT_TOPIC is required")
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseInt(key string, def, lo, hi int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo || n > hi {
		return 0, fmt.Errorf("invalid %s: must be an integer in [%d, %d]", key, lo, hi)
	}
	return n, nil
}

func parseFloat(key string, def, lo, hi float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < lo || f > hi {
		return 0, fmt.Errorf("invalid %s: must be a number in [%g, %g]", key, lo, hi)
	}
	return f, nil
}

func parseStationCacheSize() int {
	if s := os.Getenv("STATION_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 256
}
