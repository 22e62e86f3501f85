package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	// HTTPAddr enables the diagnostics server (/healthz, /metrics) when set.
	HTTPAddr string

	Sink SinkConfig
}

// SinkConfig selects and parameterizes the telemetry sink.
type SinkConfig struct {
	Kind           string
	Encoding       string
	LogLevel       slog.Level
	ConnectTimeout time.Duration

	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	SQLitePath string
}

const (
	SinkMQTT   = "mqtt"
	SinkSQLite = "sqlite"
	SinkStdout = "stdout"
)

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	level, err := parseLogLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, err
	}

	sinkLevel, err := parseLogLevel(envOr("SINK_LOG_LEVEL", "warn"))
	if err != nil {
		return Config{}, fmt.Errorf("SINK_LOG_LEVEL: %w", err)
	}

	mqttPortStr := envOr("MQTT_PORT", "1883")
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	timeoutStr := envOr("SINK_CONNECT_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SINK_CONNECT_TIMEOUT %q: %w", timeoutStr, err)
	}

	cfg := Config{
		AppEnv:   appEnv,
		LogLevel: level,
		HTTPAddr: strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		Sink: SinkConfig{
			Kind:           strings.ToLower(envOr("SINK_KIND", SinkMQTT)),
			Encoding:       strings.ToLower(envOr("SINK_ENCODING", "json")),
			LogLevel:       sinkLevel,
			ConnectTimeout: timeout,
			MQTTBroker:     envOr("MQTT_BROKER", "localhost"),
			MQTTPort:       mqttPort,
			MQTTClientID:   envOr("MQTT_CLIENT_ID", "serial-communication-manager"),
			MQTTTopic:      envOr("MQTT_TOPIC", "telemetry/measures"),
			SQLitePath:     envOr("SQLITE_PATH", "data/measures.db"),
		},
	}

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		cfg, err = LoadFile(path, cfg)
		if err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Sink.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (s SinkConfig) validate() error {
	switch s.Kind {
	case SinkMQTT, SinkSQLite, SinkStdout:
	default:
		return fmt.Errorf("invalid SINK_KIND %q (allowed: mqtt, sqlite, stdout)", s.Kind)
	}
	switch s.Encoding {
	case "json", "cbor":
	default:
		return fmt.Errorf("invalid SINK_ENCODING %q (allowed: json, cbor)", s.Encoding)
	}
	if s.MQTTPort <= 0 || s.MQTTPort > 65535 {
		return fmt.Errorf("MQTT_PORT out of range: %d", s.MQTTPort)
	}
	if s.ConnectTimeout <= 0 {
		return fmt.Errorf("SINK_CONNECT_TIMEOUT must be positive, got %v", s.ConnectTimeout)
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
