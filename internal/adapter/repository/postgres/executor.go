// Package postgres implements the stores on Postgres via pgx.
//
// Expected tables:
//
//	CREATE TABLE notifications (
//	    id             TEXT PRIMARY KEY,
//	    recipient_id   TEXT NOT NULL,
//	    recipient_email TEXT,
//	    type           TEXT NOT NULL,
//	    channel        TEXT NOT NULL,
//	    subject        TEXT NOT NULL DEFAULT '',
//	    content        TEXT NOT NULL DEFAULT '',
//	    status         TEXT NOT NULL,
//	    retry_count    INT NOT NULL DEFAULT 0,
//	    error_message  TEXT NOT NULL DEFAULT '',
//	    created_at     TIMESTAMPTZ NOT NULL,
//	    sent_at        TIMESTAMPTZ,
//	    delivered_at   TIMESTAMPTZ,
//	    is_read        BOOLEAN NOT NULL DEFAULT FALSE
//	);
//	CREATE INDEX notifications_retry_idx ON notifications (status, retry_count, created_at);
//	CREATE INDEX notifications_recipient_idx ON notifications (recipient_id, created_at);
//
//	CREATE TABLE notification_preferences (
//	    user_id               TEXT PRIMARY KEY,
//	    notifications_enabled BOOLEAN NOT NULL,
//	    email_enabled         BOOLEAN NOT NULL,
//	    push_enabled          BOOLEAN NOT NULL,
//	    email_frequency       TEXT NOT NULL DEFAULT 'IMMEDIATE',
//	    notification_types    JSONB,
//	    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//
//	CREATE TABLE notification_templates (
//	    name               TEXT PRIMARY KEY,
//	    channel            TEXT NOT NULL,
//	    subject            TEXT NOT NULL DEFAULT '',
//	    body               TEXT NOT NULL,
//	    required_variables TEXT[]
//	);
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// WithTx makes stores called with the returned context join tx.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func getExecutor(ctx context.Context, pool *pgxpool.Pool) executor {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return pool
}

// Connect opens a pool and verifies connectivity.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}
