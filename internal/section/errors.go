package section

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("section not found")
	ErrPageNotFound = errors.New("page not found")
	// ErrConflict means the row changed after it was read. Callers retry by
	// re-reading; it is never resolved by overwriting.
	ErrConflict = errors.New("section was modified concurrently")
)

// RepositoryError wraps an underlying storage failure. It is transient.
type RepositoryError struct {
	Op  string
	Err error
}

func (e *RepositoryError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WrapRepository passes NotFound and Conflict through and wraps anything
// else as a RepositoryError.
func WrapRepository(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrPageNotFound) || errors.Is(err, ErrConflict) {
		return err
	}
	var repoErr *RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	return &RepositoryError{Op: op, Err: err}
}
