package repositories

import (
	"errors"
	"fmt"
)

// Error is a RepositoryError used by adapters without a native error taxonomy.
type Error struct {
	Op          string
	Err         error
	NotFound    bool
	Conflict    bool
	Unavailable bool
}

var _ RepositoryError = (*Error)(nil)

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) IsNotFound() bool    { return e != nil && e.NotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.Conflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.Unavailable }

// NewNotFoundError reports a missing record.
func NewNotFoundError(op, what string) *Error {
	return &Error{Op: op, Err: fmt.Errorf("%s not found", what), NotFound: true}
}

// NewConflictError reports a write that collides with existing state.
func NewConflictError(op, what string) *Error {
	return &Error{Op: op, Err: fmt.Errorf("%s already exists", what), Conflict: true}
}

// NewUnavailableError reports a backend outage.
func NewUnavailableError(op string, err error) *Error {
	return &Error{Op: op, Err: err, Unavailable: true}
}

// IsNotFound reports whether err is a RepositoryError for a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err is a RepositoryError for a conflicting write.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err is a RepositoryError for a backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
