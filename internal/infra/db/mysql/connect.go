package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

func Connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Schema creates the journal table.
const Schema = `
CREATE TABLE IF NOT EXISTS cu_operations (
  id            VARCHAR(64)  NOT NULL PRIMARY KEY,
  tenant_id     VARCHAR(128) NOT NULL,
  kind          VARCHAR(32)  NOT NULL,
  target        VARCHAR(255) NOT NULL,
  handle        TEXT         NOT NULL,
  status        VARCHAR(16)  NOT NULL,
  error_code    VARCHAR(128) NOT NULL DEFAULT '',
  error_message TEXT         NOT NULL,
  duration_ms   BIGINT       NOT NULL DEFAULT 0,
  created_at    DATETIME(3)  NOT NULL,
  updated_at    DATETIME(3)  NOT NULL,
  KEY idx_cu_operations_tenant_created (tenant_id, created_at)
);`

// Migrate applies Schema.
func Migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}
