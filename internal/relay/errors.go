package relay

import (
	"errors"
	"fmt"
)

// Validation failures. Nothing is persisted when one of these is returned.
var (
	ErrEmptyRecipient = errors.New("recipient is required")
	ErrEmptyBody      = errors.New("message body is required")
	ErrBodyTooLong    = errors.New("message body too long")
)

// IsValidation reports whether err is a request validation failure, as
// opposed to a storage failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyRecipient) ||
		errors.Is(err, ErrEmptyBody) ||
		errors.Is(err, ErrBodyTooLong)
}

// StorageError wraps a message store failure. A send that returns it was
// not persisted and was not fanned out.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
