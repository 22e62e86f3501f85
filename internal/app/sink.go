package app

import (
	"fmt"
	"io"
	"log/slog"

	"uart-gateway/internal/config"
	"uart-gateway/internal/db"
	"uart-gateway/internal/mqtt"
	"uart-gateway/internal/sink"
)

// NewSink builds the sink selected by cfg.Kind. stdout is used by the stdout
// sink.
func NewSink(cfg config.SinkConfig, stdout io.Writer, logger *slog.Logger) (sink.Sink, error) {
	switch cfg.Kind {
	case config.SinkMQTT:
		return mqtt.NewSink(cfg, logger), nil
	case config.SinkSQLite:
		return db.NewStore(cfg, logger), nil
	case config.SinkStdout:
		return sink.NewWriter(nopCloser{stdout}), nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
}

// nopCloser keeps the process stdout open when the sink is released.
type nopCloser struct {
	io.Writer
}
