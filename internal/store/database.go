package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// RetryConfig holds configuration for database connection retry logic.
type RetryConfig struct {
	MaxRetries     int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	ConnectTimeout time.Duration
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     5,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		BackoffFactor:  2.0,
		ConnectTimeout: 5 * time.Second,
	}
}

// Open opens the SQLite database, retrying with backoff, and runs the
// schema migrations.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	db, err := openWithRetry(ctx, "sqlite3", path, DefaultRetryConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func openWithRetry(ctx context.Context, driver, dsn string, config RetryConfig) (*sql.DB, error) {
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled while connecting to database")
		default:
		}

		db, err := sql.Open(driver, dsn)
		if err == nil {
			// SQLite serializes writes through a single connection.
			db.SetMaxOpenConns(1)
			db.SetMaxIdleConns(1)

			pingCtx, cancel := context.WithTimeout(ctx, config.ConnectTimeout)
			err = db.PingContext(pingCtx)
			cancel()
			if err == nil {
				return db, nil
			}
			db.Close()
		}

		slog.Error("Database connection failed",
			"error", err,
			"attempt", attempt,
			"max_attempts", config.MaxRetries)

		if attempt < config.MaxRetries {
			time.Sleep(delay)
			delay = time.Duration(float64(delay) * config.BackoffFactor)
			if delay > config.MaxDelay {
				delay = config.MaxDelay
			}
			continue
		}
		return nil, fmt.Errorf("failed to connect after %d attempts: %w", config.MaxRetries, err)
	}

	return nil, fmt.Errorf("failed to connect to database")
}

// Migrate creates the schema if it does not exist.
func Migrate(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS chat_message (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_message_user_created
			ON chat_message(user_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS annotation (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			user_name TEXT NOT NULL,
			content TEXT NOT NULL,
			x_position REAL NOT NULL,
			y_position REAL NOT NULL,
			chart_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_annotation_created
			ON annotation(created_at DESC)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}
