package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

const Schema = `
CREATE TABLE IF NOT EXISTS cu_operations (
  id            TEXT        PRIMARY KEY,
  tenant_id     TEXT        NOT NULL,
  kind          TEXT        NOT NULL,
  target        TEXT        NOT NULL,
  handle        TEXT        NOT NULL DEFAULT '',
  status        TEXT        NOT NULL,
  error_code    TEXT        NOT NULL DEFAULT '',
  error_message TEXT        NOT NULL DEFAULT '',
  duration_ms   BIGINT      NOT NULL DEFAULT 0,
  created_at    TIMESTAMPTZ NOT NULL,
  updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_cu_operations_tenant_created ON cu_operations (tenant_id, created_at DESC);`

func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}
