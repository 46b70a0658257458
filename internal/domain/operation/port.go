package operation

import "context"

// TokenProvider port (bearer token source). Implementations must be safe for
// concurrent use and handle their own caching/refresh.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}
