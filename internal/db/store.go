package db

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"uart-gateway/internal/config"
	"uart-gateway/internal/sink"

	"github.com/fxamacker/cbor/v2"
)

//go:embed queries/insert-measure.sql
var insertMeasureSQL string

//go:embed queries/count-measures.sql
var countMeasuresSQL string

// Store is a sink that keeps every payload in a local SQLite database.
// It is safe for concurrent use.
type Store struct {
	cfg    config.SinkConfig
	logger *slog.Logger

	mu sync.RWMutex
	db *sql.DB
}

var _ sink.Sink = (*Store)(nil)

func NewStore(cfg config.SinkConfig, logger *slog.Logger) *Store {
	return &Store{cfg: cfg, logger: logger.With("sink", "sqlite")}
}

// Connect opens the database and applies pending migrations.
func (s *Store) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var sqlLogger *slog.Logger
	if s.cfg.LogLevel <= slog.LevelDebug {
		sqlLogger = s.logger
	}

	db, err := Open(s.cfg.SQLitePath, sqlLogger)
	if err != nil {
		return err
	}
	if err := Migrate(db, s.logger); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	s.mu.Lock()
	old := s.db
	s.db = db
	s.mu.Unlock()
	_ = Close(old)

	s.logger.Info("sqlite sink ready", "path", s.cfg.SQLitePath)
	return nil
}

// Send stores payload. Identity, type, timestamp and value are extracted into
// columns when the payload is a JSON or CBOR measure; otherwise only the raw
// payload is kept.
func (s *Store) Send(ctx context.Context, payload []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return &sink.SendError{Sink: "sqlite", Err: sink.ErrNotConnected}
	}

	meta := extractMeta(payload)
	if _, err := s.db.ExecContext(ctx, insertMeasureSQL,
		meta.ID, meta.MeasureType, meta.Timestamp, meta.Value, payload,
	); err != nil {
		return &sink.SendError{Sink: "sqlite", Err: err}
	}
	return nil
}

// Count returns the number of stored payloads.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return 0, sink.ErrNotConnected
	}
	var n int
	if err := s.db.QueryRowContext(ctx, countMeasuresSQL).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	db := s.db
	s.db = nil
	s.mu.Unlock()
	return Close(db)
}

type payloadMeta struct {
	ID          *string  `json:"_id" cbor:"_id"`
	MeasureType *string  `json:"MeasureType" cbor:"MeasureType"`
	Timestamp   *string  `json:"Timestamp" cbor:"Timestamp"`
	Value       *float64 `json:"Value" cbor:"Value"`
}

func extractMeta(payload []byte) payloadMeta {
	var m payloadMeta
	if json.Valid(payload) {
		if err := json.Unmarshal(payload, &m); err == nil {
			return m
		}
		return payloadMeta{}
	}
	if err := cbor.Unmarshal(payload, &m); err != nil {
		return payloadMeta{}
	}
	return m
}
