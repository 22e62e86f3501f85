package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"uart-gateway/internal/config"
	"uart-gateway/internal/db"
	"uart-gateway/internal/decode"
	"uart-gateway/internal/measure"
	"uart-gateway/internal/metrics"
	"uart-gateway/internal/mqtt"
	"uart-gateway/internal/session"
	"uart-gateway/internal/sink"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// recorder keeps the order of lifecycle events across the sink and the opener.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeSink struct {
	rec        *recorder
	connectErr error
	closes     int
	sent       chan []byte
}

func (f *fakeSink) Connect(context.Context) error {
	f.rec.add("connect")
	return f.connectErr
}

func (f *fakeSink) Send(_ context.Context, payload []byte) error {
	f.sent <- payload
	return nil
}

func (f *fakeSink) Close() error {
	f.closes++
	f.rec.add("release")
	return nil
}

// fakeLines opens an io.Pipe per port; ports listed in fail cannot be opened.
type fakeLines struct {
	rec     *recorder
	fail    map[string]bool
	mu      sync.Mutex
	writers map[string]*io.PipeWriter
}

func (f *fakeLines) open(_ context.Context, cfg config.PortConfig) (io.ReadCloser, error) {
	f.rec.add("open " + cfg.Name)
	if f.fail[cfg.Name] {
		return nil, errors.New("port busy")
	}
	r, w := io.Pipe()
	f.mu.Lock()
	f.writers[cfg.Name] = w
	f.mu.Unlock()
	return r, nil
}

func (f *fakeLines) writer(name string) *io.PipeWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writers[name]
}

func newFixture(fail ...string) (*Supervisor, *fakeSink, *fakeLines, *recorder) {
	rec := &recorder{}
	snk := &fakeSink{rec: rec, sent: make(chan []byte, 16)}
	lines := &fakeLines{rec: rec, fail: map[string]bool{}, writers: map[string]*io.PipeWriter{}}
	for _, f := range fail {
		lines.fail[f] = true
	}
	sup := NewSupervisor(session.Deps{
		Sink:    snk,
		Encoder: measure.EncodeJSON,
		Opener:  lines.open,
		Clock:   time.Now,
		Metrics: metrics.New(),
		Logger:  discardLogger(),
	}, time.Second)
	return sup, snk, lines, rec
}

var twoPorts = []config.PortConfig{
	{Mode: decode.ModeJSON, Name: "COM3", BaudRate: 9600},
	{Mode: decode.ModeValueList, Name: "COM4", BaudRate: 115200},
}

func equalEvents(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestStart_ConnectsSinkBeforePorts(t *testing.T) {
	sup, snk, lines, rec := newFixture()
	t.Cleanup(func() { _ = sup.Shutdown() })

	if err := sup.Start(context.Background(), twoPorts); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if want := []string{"connect", "open COM3", "open COM4"}; !equalEvents(rec.list(), want) {
		t.Fatalf("events: got %v, want %v", rec.list(), want)
	}

	go func() { _, _ = io.WriteString(lines.writer("COM4"), "1.5\n") }()
	select {
	case p := <-snk.sent:
		if !bytes.Contains(p, []byte(`"MeasureType":"ACC_X"`)) {
			t.Errorf("payload: %s", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no measure forwarded")
	}

	got := sup.Sessions()
	if len(got) != 2 || got[0].Port != "COM3" || got[1].Port != "COM4" {
		t.Fatalf("sessions: %+v", got)
	}
	for _, s := range got {
		if s.State != "open" {
			t.Errorf("%s state: got %s, want open", s.Port, s.State)
		}
	}
}

func TestStart_ConnectFailureOpensNoPorts(t *testing.T) {
	sup, snk, _, rec := newFixture()
	snk.connectErr = errors.New("broker unreachable")

	err := sup.Start(context.Background(), twoPorts)
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("err: got %v, want *ConnectError", err)
	}
	if !errors.Is(err, snk.connectErr) {
		t.Errorf("err does not wrap cause: %v", err)
	}
	if want := []string{"connect"}; !equalEvents(rec.list(), want) {
		t.Errorf("events: got %v, want %v", rec.list(), want)
	}
	if len(sup.Sessions()) != 0 {
		t.Errorf("sessions: got %d, want 0", len(sup.Sessions()))
	}
}

func TestStart_LaunchFailureKeepsEarlierSessions(t *testing.T) {
	ports := append(append([]config.PortConfig(nil), twoPorts...),
		config.PortConfig{Mode: decode.ModeJSON, Name: "COM5", BaudRate: 9600})
	sup, _, _, rec := newFixture("COM4")
	t.Cleanup(func() { _ = sup.Shutdown() })

	err := sup.Start(context.Background(), ports)
	var le *LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("err: got %v, want *LaunchError", err)
	}
	if le.Index != 1 || le.Port != "COM4" {
		t.Errorf("launch error: index=%d port=%s, want 1 COM4", le.Index, le.Port)
	}
	if want := []string{"connect", "open COM3", "open COM4"}; !equalEvents(rec.list(), want) {
		t.Errorf("events: got %v, want %v", rec.list(), want)
	}

	got := sup.Sessions()
	if len(got) != 2 {
		t.Fatalf("sessions: got %d, want 2", len(got))
	}
	if got[0].State != "open" {
		t.Errorf("COM3 state: got %s, want open", got[0].State)
	}
	if got[1].State != "failed-open" {
		t.Errorf("COM4 state: got %s, want failed-open", got[1].State)
	}
}

func TestStart_ConnectTimeout(t *testing.T) {
	rec := &recorder{}
	sup := NewSupervisor(session.Deps{
		Sink:   blockingSink{rec: rec},
		Logger: discardLogger(),
	}, 20*time.Millisecond)

	err := sup.Start(context.Background(), twoPorts)
	var ce *ConnectError
	if !errors.As(err, &ce) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err: got %v, want ConnectError wrapping DeadlineExceeded", err)
	}
}

type blockingSink struct{ rec *recorder }

func (b blockingSink) Connect(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (blockingSink) Send(context.Context, []byte) error { return nil }
func (blockingSink) Close() error                       { return nil }

func TestShutdown_ClosesSessionsThenSink(t *testing.T) {
	sup, snk, _, rec := newFixture()
	if err := sup.Start(context.Background(), twoPorts); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := sup.Shutdown(); err != nil {
			t.Fatalf("Shutdown %d: %v", i+1, err)
		}
	}
	if snk.closes != 1 {
		t.Errorf("sink closes: got %d, want 1", snk.closes)
	}
	events := rec.list()
	if events[len(events)-1] != "release" {
		t.Errorf("last event: got %q, want release", events[len(events)-1])
	}
	for _, s := range sup.Sessions() {
		if s.State != "closed" {
			t.Errorf("%s state: got %s, want closed", s.Port, s.State)
		}
	}
}

func TestWait_ReturnsOnCancel(t *testing.T) {
	sup, _, _, _ := newFixture()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sup.Wait(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancel")
	}
}

func TestNewSink(t *testing.T) {
	tests := []struct {
		kind    string
		check   func(sink.Sink) bool
		wantErr bool
	}{
		{config.SinkMQTT, func(s sink.Sink) bool { _, ok := s.(*mqtt.Sink); return ok }, false},
		{config.SinkSQLite, func(s sink.Sink) bool { _, ok := s.(*db.Store); return ok }, false},
		{config.SinkStdout, func(s sink.Sink) bool { return s != nil }, false},
		{"kafka", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			cfg := config.SinkConfig{Kind: tt.kind, MQTTBroker: "localhost", MQTTPort: 1883, LogLevel: slog.LevelWarn}
			s, err := NewSink(cfg, io.Discard, discardLogger())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSink: %v", err)
			}
			if !tt.check(s) {
				t.Errorf("unexpected sink type %T", s)
			}
		})
	}
}

func TestStdoutSink_DoesNotCloseWriter(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewSink(config.SinkConfig{Kind: config.SinkStdout}, &buf, discardLogger())
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	ctx := context.Background()
	if err := s.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := s.Send(ctx, []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if buf.String() != "{\"a\":1}\n" {
		t.Errorf("output: got %q", buf.String())
	}
}

func TestRun_ConnectFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg := config.Config{
		AppEnv:   "dev",
		LogLevel: slog.LevelInfo,
		Sink: config.SinkConfig{
			Kind:           config.SinkSQLite,
			Encoding:       "json",
			LogLevel:       slog.LevelWarn,
			ConnectTimeout: time.Second,
			SQLitePath:     filepath.Join(blocker, "measures.db"),
		},
	}

	err := Run(context.Background(), cfg, twoPorts, discardLogger())
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("err: got %v, want *ConnectError", err)
	}
}

func TestRun_LaunchFailure(t *testing.T) {
	cfg := config.Config{
		AppEnv:   "dev",
		LogLevel: slog.LevelInfo,
		Sink: config.SinkConfig{
			Kind:           config.SinkSQLite,
			Encoding:       "cbor",
			LogLevel:       slog.LevelWarn,
			ConnectTimeout: time.Second,
			SQLitePath:     filepath.Join(t.TempDir(), "measures.db"),
		},
	}
	ports := []config.PortConfig{{Mode: decode.ModeJSON, Name: filepath.Join(t.TempDir(), "no-such-tty"), BaudRate: 9600}}

	err := Run(context.Background(), cfg, ports, discardLogger())
	var le *LaunchError
	if !errors.As(err, &le) {
		t.Fatalf("err: got %v, want *LaunchError", err)
	}
	if le.Index != 0 {
		t.Errorf("index: got %d, want 0", le.Index)
	}
}

func TestRun_UnknownEncoding(t *testing.T) {
	cfg := config.Config{Sink: config.SinkConfig{Kind: config.SinkStdout, Encoding: "xml"}}
	err := Run(context.Background(), cfg, twoPorts, discardLogger())
	if err == nil {
		t.Fatal("expected error")
	}
	var ce *ConnectError
	var le *LaunchError
	if errors.As(err, &ce) || errors.As(err, &le) {
		t.Errorf("encoding error should not be a start error: %v", err)
	}
}
