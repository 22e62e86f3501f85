package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"uart-gateway/internal/config"
	"uart-gateway/internal/sink"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const publishTimeout = 5 * time.Second

// Sink publishes encoded measures to one MQTT topic. It is safe for
// concurrent use by several sessions.
type Sink struct {
	client    mqtt.Client
	cfg       config.SinkConfig
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

var _ sink.Sink = (*Sink)(nil)

func NewSink(cfg config.SinkConfig, logger *slog.Logger) *Sink {
	s := &Sink{
		cfg:    cfg,
		logger: logger.With("sink", "mqtt"),
		stopCh: make(chan struct{}),
	}
	routeClientLogs(s.logger, cfg.LogLevel)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	// Session settings
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Callbacks keep internal state accurate
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		s.setConnected(true)
		s.logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.setConnected(false)
		s.logger.Warn("mqtt connection lost", "error", err)
	})

	s.client = mqtt.NewClient(opts)
	return s
}

// newSinkWithClient is used by tests to drive a fake client.
func newSinkWithClient(cfg config.SinkConfig, logger *slog.Logger, client mqtt.Client) *Sink {
	return &Sink{
		client: client,
		cfg:    cfg,
		logger: logger.With("sink", "mqtt"),
		stopCh: make(chan struct{}),
	}
}

// routeClientLogs sends paho's internal loggers through slog, gated by the
// sink log level.
func routeClientLogs(logger *slog.Logger, level slog.Level) {
	h := logger.With("component", "paho").Handler()
	mqtt.CRITICAL = slog.NewLogLogger(h, slog.LevelError)
	mqtt.ERROR = slog.NewLogLogger(h, slog.LevelError)
	if level <= slog.LevelWarn {
		mqtt.WARN = slog.NewLogLogger(h, slog.LevelWarn)
	}
	if level <= slog.LevelDebug {
		mqtt.DEBUG = slog.NewLogLogger(h, slog.LevelDebug)
	}
}

// Connect establishes the connection to the broker.
// This function waits for the initial connection, and respects ctx and Close().
func (s *Sink) Connect(ctx context.Context) error {
	// Fail fast if already stopped.
	select {
	case <-s.stopCh:
		return fmt.Errorf("mqtt sink stopped")
	default:
	}

	// Fast path.
	if s.IsConnected() {
		return nil
	}

	// Start connect attempt. With ConnectRetry(true), it may keep retrying internally.
	token := s.client.Connect()

	// Wait in a ctx/stop-aware loop.
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			s.setConnected(true)
			return nil
		}

		select {
		case <-ctx.Done():
			s.client.Disconnect(0)
			return fmt.Errorf("mqtt connect %s:%d: %w", s.cfg.MQTTBroker, s.cfg.MQTTPort, ctx.Err())
		case <-s.stopCh:
			s.client.Disconnect(0)
			return fmt.Errorf("mqtt sink stopped")
		default:
		}
	}
}

// Send publishes payload with QoS 1 and waits for the broker acknowledgement.
func (s *Sink) Send(ctx context.Context, payload []byte) error {
	if !s.IsConnected() {
		return &sink.SendError{Sink: "mqtt", Err: sink.ErrNotConnected}
	}

	topic := s.cfg.MQTTTopic
	token := s.client.Publish(topic, 1, false, payload)

	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return &sink.SendError{Sink: "mqtt", Err: ctx.Err()}
	case <-timer.C:
		return &sink.SendError{Sink: "mqtt", Err: fmt.Errorf("publish timeout for topic %s", topic)}
	}
	if err := token.Error(); err != nil {
		return &sink.SendError{Sink: "mqtt", Err: fmt.Errorf("publish to %s: %w", topic, err)}
	}

	s.logger.Debug("published measure", "topic", topic, "size", len(payload))
	return nil
}

// IsConnected returns whether the client is connected.
func (s *Sink) IsConnected() bool {
	s.mu.RLock()
	connected := s.connected
	s.mu.RUnlock()
	return connected && s.client.IsConnected()
}

// Close stops the sink and closes the MQTT connection.
// Idempotent and safe to call multiple times.
func (s *Sink) Close() error {
	first := false
	s.stopOnce.Do(func() {
		close(s.stopCh)
		first = true
	})
	if !first {
		return nil
	}

	// Paho Disconnect quiesces in-flight work for the given ms.
	if s.client != nil {
		s.client.Disconnect(250)
	}

	s.setConnected(false)
	s.logger.Info("mqtt disconnected")
	return nil
}

func (s *Sink) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}
