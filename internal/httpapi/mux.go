package httpapi

import (
	"net/http"

	"uart-gateway/internal/metrics"
)

func NewMux(sinkKind string, sessions SessionSource, m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, sinkKind, sessions)
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	return mux
}
