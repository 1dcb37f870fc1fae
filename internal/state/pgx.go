package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxConn is the subset of *pgxpool.Pool the store needs.
type PgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgxStore struct {
	conn PgxConn
	now  func() time.Time
}

func NewPgxStore(conn PgxConn) *PgxStore {
	return &PgxStore{conn: conn, now: time.Now}
}

func (s *PgxStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS client_state (
			state_key TEXT PRIMARY KEY,
			payload JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`
	if _, err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("creating postgres state table: %w", err)
	}
	return nil
}

func (s *PgxStore) Load(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT payload::text FROM client_state WHERE state_key = $1`

	var payload string
	err := s.conn.QueryRow(ctx, query, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("querying state %s: %w", key, err)
	}

	return []byte(payload), nil
}

func (s *PgxStore) Save(ctx context.Context, key string, data []byte) error {
	query := `
		INSERT INTO client_state (state_key, payload, updated_at)
		VALUES ($1, $2::jsonb, $3)
		ON CONFLICT (state_key) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`

	if _, err := s.conn.Exec(ctx, query, key, string(data), s.now().UTC()); err != nil {
		return fmt.Errorf("upserting state %s: %w", key, err)
	}
	return nil
}

func (s *PgxStore) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.Exec(ctx, `DELETE FROM client_state WHERE state_key = $1`, key); err != nil {
		return fmt.Errorf("deleting state %s: %w", key, err)
	}
	return nil
}
