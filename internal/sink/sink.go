// Package sink defines the forwarding channel measures are sent through.
package sink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrNotConnected is returned by Send before Connect succeeded or after Close.
var ErrNotConnected = errors.New("sink not connected")

// Sink forwards encoded measures to the remote collector. Connect is called
// once before any port is opened; Send may be called from many sessions.
type Sink interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// SendError describes a payload the sink refused.
type SendError struct {
	Sink string
	Err  error
}

func (e *SendError) Error() string { return fmt.Sprintf("%s send: %v", e.Sink, e.Err) }

func (e *SendError) Unwrap() error { return e.Err }

// Serialize wraps s so that its methods never run concurrently. Use it for
// sinks that are not safe for concurrent use.
func Serialize(s Sink) Sink {
	if _, ok := s.(*serialized); ok {
		return s
	}
	return &serialized{next: s}
}

type serialized struct {
	mu   sync.Mutex
	next Sink
}

func (s *serialized) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Connect(ctx)
}

func (s *serialized) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Send(ctx, payload)
}

func (s *serialized) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next.Close()
}

// Writer writes each payload followed by a newline. It is not safe for
// concurrent use on its own; NewWriter returns it already serialized.
type Writer struct {
	w         *bufio.Writer
	closer    io.Closer
	connected bool
}

// NewWriter returns a sink writing to w. If w is an io.Closer it is closed
// by Close.
func NewWriter(w io.Writer) Sink {
	ws := &Writer{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		ws.closer = c
	}
	return Serialize(ws)
}

func (w *Writer) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.connected = true
	return nil
}

func (w *Writer) Send(ctx context.Context, payload []byte) error {
	if !w.connected {
		return &SendError{Sink: "writer", Err: ErrNotConnected}
	}
	if _, err := w.w.Write(payload); err != nil {
		return &SendError{Sink: "writer", Err: err}
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return &SendError{Sink: "writer", Err: err}
	}
	if err := w.w.Flush(); err != nil {
		return &SendError{Sink: "writer", Err: err}
	}
	return nil
}

func (w *Writer) Close() error {
	if !w.connected {
		return nil
	}
	w.connected = false
	err := w.w.Flush()
	if w.closer != nil {
		err = errors.Join(err, w.closer.Close())
	}
	return err
}
