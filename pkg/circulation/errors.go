package circulation

import (
	"errors"
	"fmt"
	"lms/pkg/store"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrOutOfStock         = errors.New("book not available")
	ErrBlocked            = errors.New("blocked")
	ErrAlreadyBorrowed    = fmt.Errorf("%w: member already holds an active loan for this book", ErrBlocked)
	ErrInvariantViolation = errors.New("invariant violation")
	ErrInvalidInput       = errors.New("invalid input")
)

// IsStorageError reports whether err is a backend failure rather than a
// business rule rejection. Only those are worth retrying.
func IsStorageError(err error) bool { return store.IsStorageError(err) }
