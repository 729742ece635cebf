package repositories

import (
	"errors"
	"fmt"
)

// StorageErrorCode classifies failures raised by the non-Firestore adapters (Redis, local files).
type StorageErrorCode string

const (
	// StorageErrorUnknown represents an unspecified failure.
	StorageErrorUnknown StorageErrorCode = "storage_unknown"
	// StorageErrorNotFound indicates the key does not exist.
	StorageErrorNotFound StorageErrorCode = "storage_not_found"
	// StorageErrorUnavailable indicates the backend could not be reached.
	StorageErrorUnavailable StorageErrorCode = "storage_unavailable"
	// StorageErrorConflict indicates a concurrent writer won.
	StorageErrorConflict StorageErrorCode = "storage_conflict"
)

// StorageError wraps adapter failures so services can classify them like Firestore errors.
type StorageError struct {
	Op   string
	Code StorageErrorCode
	Err  error
}

var _ RepositoryError = (*StorageError)(nil)

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e == nil {
		return ""
	}
	msg := string(e.Code)
	if e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *StorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound implements RepositoryError.
func (e *StorageError) IsNotFound() bool { return e != nil && e.Code == StorageErrorNotFound }

// IsConflict implements RepositoryError.
func (e *StorageError) IsConflict() bool { return e != nil && e.Code == StorageErrorConflict }

// IsUnavailable implements RepositoryError.
func (e *StorageError) IsUnavailable() bool { return e != nil && e.Code == StorageErrorUnavailable }

// NewStorageError constructs a typed storage error.
func NewStorageError(op string, code StorageErrorCode, err error) *StorageError {
	if code == "" {
		code = StorageErrorUnknown
	}
	return &StorageError{Op: op, Code: code, Err: err}
}

// IsUnavailable reports whether err carries a RepositoryError classified as unavailable.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// IsNotFound reports whether err carries a RepositoryError classified as not found.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
