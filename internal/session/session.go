// Package session owns one serial line: it reads framed lines, decodes them
// and forwards every measure to the shared sink.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"uart-gateway/internal/config"
	"uart-gateway/internal/decode"
	"uart-gateway/internal/measure"
	"uart-gateway/internal/metrics"
	"uart-gateway/internal/sink"
)

type State int32

const (
	Closed State = iota
	Opening
	Open
	Closing
	FailedOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case FailedOpen:
		return "failed-open"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Opener opens the physical line described by cfg.
type Opener func(ctx context.Context, cfg config.PortConfig) (io.ReadCloser, error)

// Deps are the collaborators shared by every session of the process.
type Deps struct {
	Sink    sink.Sink
	Encoder measure.Encoder
	Opener  Opener
	Clock   func() time.Time
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

var ErrAlreadyOpened = errors.New("session already opened")

type Session struct {
	cfg     config.PortConfig
	sink    sink.Sink
	encode  measure.Encoder
	open    Opener
	metrics *metrics.Metrics
	logger  *slog.Logger
	decoder decode.Decoder

	packets atomic.Uint64
	state   atomic.Int32

	mu       sync.Mutex
	opened   bool
	line     io.ReadCloser
	cancel   context.CancelFunc
	lineOnce sync.Once
	lineErr  error

	done     chan struct{}
	doneOnce sync.Once
}

// New binds a session to cfg. The decoder is chosen once from cfg.Mode.
func New(cfg config.PortConfig, deps Deps) (*Session, error) {
	if deps.Sink == nil {
		return nil, errors.New("session: nil sink")
	}
	if deps.Encoder == nil {
		deps.Encoder = measure.EncodeJSON
	}
	if deps.Opener == nil {
		deps.Opener = SerialOpener
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	dec, err := decode.New(cfg.Mode, deps.Clock)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", cfg.Name, err)
	}

	return &Session{
		cfg:     cfg,
		sink:    deps.Sink,
		encode:  deps.Encoder,
		open:    deps.Opener,
		metrics: deps.Metrics,
		logger:  deps.Logger.With("port", cfg.Name, "mode", cfg.Mode.String()),
		decoder: dec,
		done:    make(chan struct{}),
	}, nil
}

func (s *Session) Config() config.PortConfig { return s.cfg }

// Snapshot is a point-in-time view of a session for health reporting.
type Snapshot struct {
	Port     string `json:"port"`
	Mode     string `json:"mode"`
	BaudRate int    `json:"baud_rate"`
	State    string `json:"state"`
	Packets  uint64 `json:"packets"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		Port:     s.cfg.Name,
		Mode:     s.cfg.Mode.String(),
		BaudRate: s.cfg.BaudRate,
		State:    s.State().String(),
		Packets:  s.Packets(),
	}
}

// Packets returns how many lines have been handled.
func (s *Session) Packets() uint64 { return s.packets.Load() }

func (s *Session) State() State { return State(s.state.Load()) }

// Done is closed once the session stops reading, or fails to open.
func (s *Session) Done() <-chan struct{} { return s.done }

// Open opens the line and starts the read loop. A session can be opened once;
// a failed open is terminal.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return fmt.Errorf("session %s: %w", s.cfg.Name, ErrAlreadyOpened)
	}
	s.opened = true
	s.setState(Opening)

	line, err := s.open(ctx, s.cfg)
	if err == nil && line == nil {
		err = errors.New("opener returned no line")
	}
	if err != nil {
		s.setState(FailedOpen)
		s.finish()
		return fmt.Errorf("open %s: %w", s.cfg.Name, err)
	}

	// The read loop outlives the ctx used for opening.
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.line = line
	s.cancel = cancel
	s.setState(Open)
	s.metrics.SessionsOpen.Inc()
	s.logger.Info("serial port opened", "baud", s.cfg.BaudRate)

	go s.readLoop(loopCtx, line)
	return nil
}

// Close stops the session and waits for its read loop to exit. It is safe to
// call more than once and on a session that was never opened.
func (s *Session) Close() error {
	s.mu.Lock()
	if !s.opened {
		s.opened = true
		s.mu.Unlock()
		s.finish()
		return nil
	}
	if s.line == nil {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	if s.State() == Open {
		s.setState(Closing)
	}
	s.cancel()
	s.mu.Unlock()

	err := s.closeLine()
	<-s.done
	return err
}

// HandleLine decodes one line and forwards its measures in order. The first
// encode or send failure drops the remaining measures of the line; the
// session keeps running.
func (s *Session) HandleLine(ctx context.Context, line string) {
	packet := s.packets.Add(1)
	port := s.cfg.Name
	s.metrics.Packets.WithLabelValues(port).Inc()

	records := s.decoder.Decode(line)
	if len(records) == 0 {
		s.metrics.DecodeEmpty.WithLabelValues(port).Inc()
		s.logger.Debug("line produced no measures", "packet", packet, "line", line)
		return
	}

	for i, m := range records {
		payload, err := s.encode(m)
		if err == nil {
			err = s.sink.Send(ctx, payload)
		}
		if err != nil {
			s.metrics.SendFailures.WithLabelValues(port).Inc()
			s.logger.Warn("forward failed, dropping rest of line",
				"packet", packet,
				"record", i,
				"records", len(records),
				"measure_type", m.MeasureType,
				"error", err,
			)
			return
		}
		s.metrics.RecordsForwarded.WithLabelValues(port).Inc()
	}
	s.logger.Debug("line forwarded", "packet", packet, "records", len(records))
}

func (s *Session) readLoop(ctx context.Context, line io.ReadCloser) {
	defer func() {
		_ = s.closeLine()
		s.mu.Lock()
		s.setState(Closed)
		s.mu.Unlock()
		s.metrics.SessionsOpen.Dec()
		s.finish()
	}()

	r := bufio.NewReader(line)
	for {
		raw, err := r.ReadString('\n')
		if err != nil {
			s.logEnd(raw, err)
			return
		}
		s.HandleLine(ctx, trimLine(raw))
	}
}

func (s *Session) logEnd(partial string, err error) {
	if s.State() == Closing {
		s.logger.Info("serial port closed", "packets", s.Packets())
		return
	}
	attrs := []any{"packets", s.Packets()}
	if partial != "" {
		attrs = append(attrs, "discarded_bytes", len(partial))
	}
	if errors.Is(err, io.EOF) {
		s.logger.Warn("serial line ended", attrs...)
		return
	}
	s.logger.Error("serial read failed", append(attrs, "error", err)...)
}

func (s *Session) closeLine() error {
	s.lineOnce.Do(func() {
		s.lineErr = s.line.Close()
	})
	return s.lineErr
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// trimLine strips the line terminator, accepting both "\n" and "\r\n".
func trimLine(raw string) string {
	raw = strings.TrimSuffix(raw, "\n")
	return strings.TrimSuffix(raw, "\r")
}
