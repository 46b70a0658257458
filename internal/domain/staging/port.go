package staging

import (
	"context"
	"io"
	"time"
)

// ObjectStore port (interface untuk penyimpanan training/reference data)
type ObjectStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	UploadFile(ctx context.Context, localPath, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	// ContainerURL is a time-limited URL the service can use to read the container.
	ContainerURL(ctx context.Context, expiry time.Duration) (string, error)
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
