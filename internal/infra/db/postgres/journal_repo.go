package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bryanwahyu/cu-orchestrator/internal/domain/journal"
)

type JournalRepository struct{ db *sql.DB }

var _ journal.Repository = (*JournalRepository)(nil)

func NewJournalRepository(db *sql.DB) *JournalRepository { return &JournalRepository{db: db} }

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
VALUES ($1,$2,$3,$4,$5,$6,
        $7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
 handle = EXCLUDED.handle,
 status = EXCLUDED.status,
 error_code = EXCLUDED.error_code,
 error_message = EXCLUDED.error_message,
 duration_ms = EXCLUDED.duration_ms,
 updated_at = EXCLUDED.updated_at;`

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = created
	}

	_, err := r.db.ExecContext(ctx, q,
		rec.ID, dash(rec.TenantID), string(rec.Kind), dash(rec.Target), rec.Handle, dash(string(rec.Status)),
		rec.ErrorCode, rec.ErrorMessage, rec.DurationMS, created, updated,
	)
	return err
}

// Get by ID + Tenant
func (r *JournalRepository) Get(ctx context.Context, tenant string, id journal.RecordID) (*journal.Record, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+"\nWHERE tenant_id=$1 AND id=$2 LIMIT 1;", tenant, id)
	var rec journal.Record
	if err := scanRecord(row, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *JournalRepository) Latest(ctx context.Context, tenant string, limit int) ([]*journal.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, selectColumns+"\nWHERE tenant_id=$1 ORDER BY created_at DESC LIMIT $2;", tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (r *JournalRepository) Paginate(ctx context.Context, tenant string, page, pageSize int, f journal.Filter) (journal.Page, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	where, args := buildWhere(tenant, f)
	n := len(args)
	query := fmt.Sprintf("%s\n%s\nORDER BY created_at DESC LIMIT $%d OFFSET $%d", selectColumns, where, n+1, n+2)
	rows, err := r.db.QueryContext(ctx, query, append(args, pageSize, offset)...)
	if err != nil {
		return journal.Page{}, fmt.Errorf("querying operations: %w", err)
	}
	defer rows.Close()

	data, err := collect(rows)
	if err != nil {
		return journal.Page{}, fmt.Errorf("scanning operations: %w", err)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cu_operations "+where, args...).Scan(&total); err != nil {
		return journal.Page{}, fmt.Errorf("getting total count: %w", err)
	}
	return journal.Page{
		Data:       data,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

func buildWhere(tenant string, f journal.Filter) (string, []any) {
	var b strings.Builder
	args := []any{tenant}
	b.WriteString("WHERE tenant_id=$1")
	add := func(clause string, v any) {
		args = append(args, v)
		fmt.Fprintf(&b, " AND "+clause, len(args))
	}
	if f.Kind != "" {
		add("kind=$%d", f.Kind)
	}
	if f.Status != "" {
		add("status=$%d", f.Status)
	}
	if f.Target != "" {
		add("target ILIKE $%d", "%"+escapeLike(f.Target)+"%")
	}
	return b.String(), args
}

func scanRecord(s interface{ Scan(...any) error }, rec *journal.Record) error {
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

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
