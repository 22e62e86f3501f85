package httpapi

import (
	"net/http"

	"uart-gateway/internal/session"
)

// SessionSource reports the sessions managed by the process.
type SessionSource interface {
	Sessions() []session.Snapshot
}

type healthResponse struct {
	Status       string             `json:"status"`
	Sink         string             `json:"sink"`
	SessionsOpen int                `json:"sessions_open"`
	Ports        []session.Snapshot `json:"ports"`
}

type healthchecker struct {
	sinkKind string
	sessions SessionSource
}

// handleHealthz answers 200 while at least one port is being read.
func (h *healthchecker) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if h.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "supervisor not started")
		return
	}

	ports := h.sessions.Sessions()
	open := 0
	for _, p := range ports {
		if p.State == session.Open.String() {
			open++
		}
	}

	resp := healthResponse{
		Status:       "ok",
		Sink:         h.sinkKind,
		SessionsOpen: open,
		Ports:        ports,
	}
	if resp.Ports == nil {
		resp.Ports = []session.Snapshot{}
	}

	status := http.StatusOK
	if open == 0 {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func registerHealthcheck(mux *http.ServeMux, sinkKind string, sessions SessionSource) {
	h := &healthchecker{sinkKind: sinkKind, sessions: sessions}
	mux.HandleFunc("GET /healthz", h.handleHealthz)
}
