// Package store persists placed orders.
package store

import (
	"context"
	"fmt"
	"time"

	"commerce-agent/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// OrderStore appends and lists order records in insertion order
type OrderStore interface {
	Append(ctx context.Context, record models.OrderRecord) error
	List(ctx context.Context) ([]models.OrderRecord, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	seq        BIGSERIAL PRIMARY KEY,
	order_id   TEXT NOT NULL UNIQUE,
	item       JSONB NOT NULL,
	quantity   INT NOT NULL,
	total      NUMERIC(12, 2) NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS processed_events (
	event_id     TEXT PRIMARY KEY,
	event_type   TEXT NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// Store is the Postgres order store
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection
func NewWithDB(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tables if they do not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}
