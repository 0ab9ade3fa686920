// internal/db/db.go
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/venue-broadcast/migrations"
)

const (
	maxOpenConnections = 50
	maxIdleConnections = 10
	maxConnLifetime    = time.Hour
	maxConnIdleTime    = 5 * time.Minute
)

// Open connects to postgres and verifies the connection.
func Open(ctx context.Context, dsn string, log *logrus.Entry) (*sqlx.DB, error) {
	conn, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	conn.SetMaxOpenConns(maxOpenConnections)
	conn.SetMaxIdleConns(maxIdleConnections)
	conn.SetConnMaxLifetime(maxConnLifetime)
	conn.SetConnMaxIdleTime(maxConnIdleTime)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("✅ Connected to database")
	return conn, nil
}

func setupGoose() error {
	goose.SetBaseFS(migrations.FS)
	return goose.SetDialect("postgres")
}

// Migrate applies every pending embedded migration.
func Migrate(ctx context.Context, conn *sqlx.DB) error {
	return RunMigrations(ctx, conn, "up")
}

// RunMigrations runs a goose command (up, down, status, version, redo, reset)
// against the embedded migrations.
func RunMigrations(ctx context.Context, conn *sqlx.DB, command string, args ...string) error {
	if err := setupGoose(); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, conn.DB, ".", args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}
