package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"uart-gateway/internal/app"
	"uart-gateway/internal/config"
	"uart-gateway/internal/logging"
)

var version = "dev"
var appName = "uart-gateway"

// Process exit statuses.
const (
	exitOK            = 0
	exitConfig        = 1
	exitLaunchFailed  = -1
	exitConnectFailed = -2
	exitWrongArgCount = -3
	exitInvalidArg    = -4
)

const usage = "usage: uart-gateway MODE PORT BAUD [MODE PORT BAUD ...]  (MODE: 0=json, 1=value-list)"

func main() {
	ports, err := config.ParsePorts(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n%s\n", err, usage)
		os.Exit(exitCode(err))
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(exitConfig)
	}

	logger := logging.New(cfg, version, appName)
	slog.SetDefault(logger)

	slog.Info("starting",
		"app", appName,
		"version", version,
		"env", cfg.AppEnv,
		"log_level", cfg.LogLevel.String(),
	)
	for i, p := range ports {
		slog.Info("port configured", "index", i, "port", p.Name, "baud", p.BaudRate, "mode", p.Mode.String())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, ports, logger); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "err", err)
		stop()
		os.Exit(exitCode(err))
	}

	slog.Info("shutting down")
}

// exitCode maps a startup error to the process exit status.
func exitCode(err error) int {
	var (
		connectErr *app.ConnectError
		launchErr  *app.LaunchError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, config.ErrWrongArgCount):
		return exitWrongArgCount
	case errors.Is(err, config.ErrInvalidArg):
		return exitInvalidArg
	case errors.As(err, &connectErr):
		return exitConnectFailed
	case errors.As(err, &launchErr):
		return exitLaunchFailed
	default:
		return exitConfig
	}
}
