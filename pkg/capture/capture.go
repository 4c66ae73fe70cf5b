// Package capture persists auto-captured detection samples for later
// labelling and training. The store is optional; deployments without
// Postgres simply run the pipeline with a nil store.
package capture

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Sample is one auto-captured detection worth labelling.
type Sample struct {
	CapturedAtMs int64
	SenderKey    string
	Channel      string
	Message      string
	Score        float64
	Level        string
	Rules        []string
}

// Store saves samples. Implementations must be safe for concurrent use.
type Store interface {
	SaveSample(ctx context.Context, sample Sample) error
}

// PostgresStore writes samples into a single append-only table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS capture_samples (
	id           BIGSERIAL PRIMARY KEY,
	captured_at  BIGINT NOT NULL,
	sender_key   TEXT NOT NULL,
	channel      TEXT NOT NULL,
	message      TEXT NOT NULL,
	score        DOUBLE PRECISION NOT NULL,
	level        TEXT NOT NULL,
	rules        TEXT[] NOT NULL DEFAULT '{}'
)`

const insertSampleSQL = `
INSERT INTO capture_samples (captured_at, sender_key, channel, message, score, level, rules)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// OpenPostgres connects, creates the table when missing and returns the
// ready store.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse capture dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect capture store: %w", err)
	}
	store := &PostgresStore{pool: pool}
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create capture table: %w", err)
	}
	return nil
}

// SaveSample inserts one sample.
func (s *PostgresStore) SaveSample(ctx context.Context, sample Sample) error {
	_, err := s.pool.Exec(ctx, insertSampleSQL,
		sample.CapturedAtMs, sample.SenderKey, sample.Channel,
		sample.Message, sample.Score, sample.Level, sample.Rules)
	if err != nil {
		return fmt.Errorf("save capture sample: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
