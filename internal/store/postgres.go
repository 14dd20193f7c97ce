package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PostgresBackend keeps payloads in the prediction_history table
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend opens a connection and creates the table if it does not exist
func NewPostgresBackend(ctx context.Context, params ConnectionParams) (*PostgresBackend, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Check connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	b, err := NewPostgresBackendFromDB(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// NewPostgresBackendFromDB wraps an open connection.
func NewPostgresBackendFromDB(ctx context.Context, db *sql.DB) (*PostgresBackend, error) {
	if err := createTables(ctx, db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &PostgresBackend{db: db}, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS prediction_history (
			key TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

func (p *PostgresBackend) Name() string { return "postgres" }

func (p *PostgresBackend) Read(ctx context.Context, key string) ([]byte, bool, error) {
	var payload string
	err := p.db.QueryRowContext(ctx, `
		SELECT payload
		FROM prediction_history
		WHERE key = $1
	`, key).Scan(&payload)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return []byte(payload), true, nil
}

func (p *PostgresBackend) Write(ctx context.Context, key string, payload []byte) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO prediction_history (key, payload, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`, key, string(payload), time.Now().UTC())

	return err
}

func (p *PostgresBackend) Close() error {
	return p.db.Close()
}
