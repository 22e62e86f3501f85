package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"uart-gateway/internal/config"
	"uart-gateway/internal/httpapi"
	"uart-gateway/internal/measure"
	"uart-gateway/internal/metrics"
	"uart-gateway/internal/session"
)

// Run connects the sink, opens every port and forwards measures until ctx is
// cancelled. Start failures are returned as *ConnectError or *LaunchError.
func Run(ctx context.Context, cfg config.Config, ports []config.PortConfig, logger *slog.Logger) error {
	logger.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"sinkKind", cfg.Sink.Kind,
		"sinkEncoding", cfg.Sink.Encoding,
		"mqttBroker", cfg.Sink.MQTTBroker,
		"mqttPort", cfg.Sink.MQTTPort,
		"mqttTopic", cfg.Sink.MQTTTopic,
		"sqlitePath", cfg.Sink.SQLitePath,
		"ports", len(ports),
	)

	enc, err := measure.EncoderFor(cfg.Sink.Encoding)
	if err != nil {
		return err
	}
	snk, err := NewSink(cfg.Sink, os.Stdout, logger)
	if err != nil {
		return err
	}

	m := metrics.New()
	sup := NewSupervisor(session.Deps{
		Sink:    snk,
		Encoder: enc,
		Opener:  session.SerialOpener,
		Clock:   time.Now,
		Metrics: m,
		Logger:  logger,
	}, cfg.Sink.ConnectTimeout)
	defer func() {
		if err := sup.Shutdown(); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	var srv *http.Server
	if cfg.HTTPAddr != "" {
		srv = httpapi.NewServer(cfg.HTTPAddr, httpapi.NewMux(cfg.Sink.Kind, sup, m), logger)
		go func() {
			logger.Info("http listening", "addr", cfg.HTTPAddr)
			errCh <- srv.ListenAndServe()
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http shutdown", "error", err)
			}
		}()
	}

	if err := sup.Start(ctx, ports); err != nil {
		var launchErr *LaunchError
		if errors.As(err, &launchErr) {
			logAvailablePorts(logger)
		}
		return err
	}
	logger.Info("all sessions started", "ports", len(ports))

	waitCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				cancel(err)
			}
		case <-waitCtx.Done():
		}
	}()

	sup.Wait(waitCtx)
	if cause := context.Cause(waitCtx); cause != nil && ctx.Err() == nil {
		return cause
	}
	return nil
}

func logAvailablePorts(logger *slog.Logger) {
	names, err := session.ListPorts()
	if err != nil {
		logger.Warn("could not list serial ports", "error", err)
		return
	}
	logger.Info("available serial ports", "ports", names)
}
