package staging

import (
	"errors"
	"fmt"

	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
)

// ErrNoLocalFiles is returned when the source directory holds no primary inputs.
var ErrNoLocalFiles = fmt.Errorf("%w: no local source files", operation.ErrPrecondition)

// MissingStagedResourceError lists every required key absent from the store.
type MissingStagedResourceError struct {
	Prefix  string
	Missing []string
}

func (e *MissingStagedResourceError) Error() string {
	if len(e.Missing) == 0 {
		return fmt.Sprintf("missing staged resource under %q", e.Prefix)
	}
	if len(e.Missing) == 1 {
		return fmt.Sprintf("missing staged resource %q under %q", e.Missing[0], e.Prefix)
	}
	return fmt.Sprintf("missing staged resource %q under %q (and %d more)", e.Missing[0], e.Prefix, len(e.Missing)-1)
}

func (e *MissingStagedResourceError) Is(target error) bool {
	return target == operation.ErrPrecondition
}

// AsMissing unwraps a MissingStagedResourceError if err carries one.
func AsMissing(err error) (*MissingStagedResourceError, bool) {
	var m *MissingStagedResourceError
	if errors.As(err, &m) {
		return m, true
	}
	return nil, false
}
