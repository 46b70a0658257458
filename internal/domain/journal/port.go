package journal

import "context"

// Filter narrows Paginate. Empty fields match everything; Target is a substring match.
type Filter struct {
	Kind   string
	Status string
	Target string
}

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, r *Record) error
	Get(ctx context.Context, tenant string, id RecordID) (*Record, error)
	Latest(ctx context.Context, tenant string, limit int) ([]*Record, error)
	Paginate(ctx context.Context, tenant string, page, pageSize int, f Filter) (Page, error)
}
