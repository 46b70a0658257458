package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bryanwahyu/cu-orchestrator/internal/domain/journal"
)

type JournalRepository struct {
	db *sql.DB
}

var _ journal.Repository = (*JournalRepository)(nil)

func NewJournalRepository(db *sql.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

const selectColumns = `
SELECT id, tenant_id, kind, target, handle, status,
       error_code, error_message, duration_ms, created_at, updated_at
FROM cu_operations`

// Save insert/update operation record
func (r *JournalRepository) Save(ctx context.Context, rec *journal.Record) error {
	const q = `
INSERT INTO cu_operations
(id, tenant_id, kind, target, handle, status,
 error_code, error_message, duration_ms, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)
ON DUPLICATE KEY UPDATE
 handle=VALUES(handle), status=VALUES(status),
 error_code=VALUES(error_code), error_message=VALUES(error_message),
 duration_ms=VALUES(duration_ms), updated_at=VALUES(updated_at);
`
	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	_, err := r.db.ExecContext(ctx, q,
		rec.ID, stringOrDash(rec.TenantID), string(rec.Kind), stringOrDash(rec.Target), rec.Handle,
		stringOrDash(string(rec.Status)),
		rec.ErrorCode, rec.ErrorMessage, rec.DurationMS, created, updated,
	)
	return err
}

// Get by ID + Tenant; sql.ErrNoRows when absent
func (r *JournalRepository) Get(ctx context.Context, tenant string, id journal.RecordID) (*journal.Record, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+"\nWHERE tenant_id=? AND id=? LIMIT 1;", tenant, id)
	var rec journal.Record
	if err := scanRecord(row, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Latest operations per tenant
func (r *JournalRepository) Latest(ctx context.Context, tenant string, limit int) ([]*journal.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, selectColumns+"\nWHERE tenant_id=? ORDER BY created_at DESC LIMIT ?;", tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// Paginate with offset + limit (classic pagination)
func (r *JournalRepository) Paginate(ctx context.Context, tenant string, page, pageSize int, f journal.Filter) (journal.Page, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	where, args := buildWhere(tenant, f)
	query := selectColumns + "\n" + where + "\nORDER BY created_at DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, pageSize, offset)...)
	if err != nil {
		return journal.Page{}, fmt.Errorf("querying operations: %w", err)
	}
	defer rows.Close()

	data, err := collect(rows)
	if err != nil {
		return journal.Page{}, fmt.Errorf("scanning operations: %w", err)
	}

	// Get total count for pagination
	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cu_operations "+where, args...).Scan(&total); err != nil {
		return journal.Page{}, fmt.Errorf("getting total count: %w", err)
	}

	return journal.Page{
		Data:       data,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages(total, pageSize),
	}, nil
}

func buildWhere(tenant string, f journal.Filter) (string, []any) {
	where := "WHERE tenant_id=?"
	args := []any{tenant}
	if f.Kind != "" {
		where += " AND kind=?"
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		where += " AND status=?"
		args = append(args, f.Status)
	}
	if f.Target != "" {
		where += " AND target LIKE ?"
		args = append(args, "%"+escapeLikePattern(f.Target)+"%")
	}
	return where, args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner, rec *journal.Record) error {
	return s.Scan(
		&rec.ID, &rec.TenantID, &rec.Kind, &rec.Target, &rec.Handle, &rec.Status,
		&rec.ErrorCode, &rec.ErrorMessage, &rec.DurationMS, &rec.CreatedAt, &rec.UpdatedAt,
	)
}

func collect(rows *sql.Rows) ([]*journal.Record, error) {
	var out []*journal.Record
	for rows.Next() {
		var rec journal.Record
		if err := scanRecord(rows, &rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, rows.Err()
}
