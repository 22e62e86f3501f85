package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"uart-gateway/internal/config"
	"uart-gateway/internal/session"
)

// Supervisor connects the sink once and owns one session per configured port.
type Supervisor struct {
	deps           session.Deps
	connectTimeout time.Duration
	logger         *slog.Logger

	mu       sync.Mutex
	sessions []*session.Session

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewSupervisor builds a supervisor around deps.Sink. connectTimeout bounds
// the initial sink connection; zero means no bound beyond ctx.
func NewSupervisor(deps session.Deps, connectTimeout time.Duration) *Supervisor {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		deps:           deps,
		connectTimeout: connectTimeout,
		logger:         logger,
	}
}

// Start connects the sink, then opens one session per config in order. It
// stops at the first port that fails and does not close sessions already
// opened.
func (s *Supervisor) Start(ctx context.Context, configs []config.PortConfig) error {
	if s.deps.Sink == nil {
		return &ConnectError{Err: errors.New("no sink configured")}
	}

	connectCtx := ctx
	if s.connectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, s.connectTimeout)
		defer cancel()
	}
	if err := s.deps.Sink.Connect(connectCtx); err != nil {
		return &ConnectError{Err: err}
	}
	s.logger.Info("sink connected")

	for i, cfg := range configs {
		sess, err := session.New(cfg, s.deps)
		if err != nil {
			return &LaunchError{Index: i, Port: cfg.Name, Err: err}
		}

		s.mu.Lock()
		s.sessions = append(s.sessions, sess)
		s.mu.Unlock()

		if err := sess.Open(ctx); err != nil {
			return &LaunchError{Index: i, Port: cfg.Name, Err: err}
		}
	}
	return nil
}

// Wait blocks until ctx is cancelled.
func (s *Supervisor) Wait(ctx context.Context) {
	<-ctx.Done()
	s.logger.Info("shutdown requested", "cause", context.Cause(ctx))
}

// Shutdown closes every session, then releases the sink. Only the first call
// does any work.
func (s *Supervisor) Shutdown() error {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		sessions := append([]*session.Session(nil), s.sessions...)
		s.mu.Unlock()

		var errs []error
		for _, sess := range sessions {
			if err := sess.Close(); err != nil {
				s.logger.Warn("session close failed", "port", sess.Config().Name, "error", err)
				errs = append(errs, err)
			}
		}
		if s.deps.Sink != nil {
			if err := s.deps.Sink.Close(); err != nil {
				s.logger.Warn("sink release failed", "error", err)
				errs = append(errs, err)
			}
		}
		s.shutdownErr = errors.Join(errs...)
		s.logger.Info("supervisor stopped", "sessions", len(sessions))
	})
	return s.shutdownErr
}

// Sessions returns a snapshot of every session started so far, in start order.
func (s *Supervisor) Sessions() []session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.Snapshot, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Snapshot())
	}
	return out
}
