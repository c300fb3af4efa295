package workspace

import (
	"errors"
	"fmt"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
)

var (
	// ErrNotAuthenticated is returned by any scoped operation attempted
	// without a token. Nothing is sent.
	ErrNotAuthenticated = backend.ErrNoToken
	ErrBusy             = errors.New("a query is already in flight")
	ErrNotConfirmed     = errors.New("deletion not confirmed")
	ErrSyncInProgress   = errors.New("sync already in progress")
)

func unknown(kind string, id backend.ID) error {
	return fmt.Errorf("unknown %s %s: %w", kind, id, backend.ErrNotFound)
}

func invalid(field, reason string) error {
	return &backend.ValidationError{Field: field, Reason: reason}
}
