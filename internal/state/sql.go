package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Dialect holds the statements that differ between the database/sql backends.
type Dialect struct {
	Name   string
	Schema string
	Upsert string
}

var MySQLDialect = Dialect{
	Name: "mysql",
	Schema: `
		CREATE TABLE IF NOT EXISTS ClientState (
			stateKey VARCHAR(64) NOT NULL PRIMARY KEY,
			payload LONGTEXT NOT NULL,
			updatedAt DATETIME(6) NOT NULL
		)`,
	Upsert: `
		INSERT INTO ClientState (stateKey, payload, updatedAt)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE payload = VALUES(payload), updatedAt = VALUES(updatedAt)`,
}

var SQLiteDialect = Dialect{
	Name: "sqlite",
	Schema: `
		CREATE TABLE IF NOT EXISTS ClientState (
			stateKey TEXT NOT NULL PRIMARY KEY,
			payload TEXT NOT NULL,
			updatedAt TIMESTAMP NOT NULL
		)`,
	Upsert: `
		INSERT INTO ClientState (stateKey, payload, updatedAt)
		VALUES (?, ?, ?)
		ON CONFLICT(stateKey) DO UPDATE SET payload = excluded.payload, updatedAt = excluded.updatedAt`,
}

type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Schema); err != nil {
		return fmt.Errorf("creating %s state table: %w", s.dialect.Name, err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT payload FROM ClientState WHERE stateKey = ?`

	var payload string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, fmt.Errorf("querying state %s: %w", key, err)
	}

	return []byte(payload), nil
}

func (s *SQLStore) Save(ctx context.Context, key string, data []byte) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Upsert, key, string(data), s.now().UTC()); err != nil {
		return fmt.Errorf("upserting state %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM ClientState WHERE stateKey = ?`

	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("deleting state %s: %w", key, err)
	}
	return nil
}
