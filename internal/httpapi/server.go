package httpapi

import (
	"log/slog"
	"net/http"
	"time"
)

// NewServer returns the diagnostics server. A nil logger uses slog.Default().
func NewServer(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &http.Server{
		Addr:              addr,
		Handler:           requestLogger(logger.With("component", "http"), handler),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
