package enquiry

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no enquiry matches the lookup.
	ErrNotFound = errors.New("enquiry not found")

	// ErrInvalidStatus is returned for statuses outside Statuses.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrMissingPhone is returned when a turn arrives without a sender.
	ErrMissingPhone = errors.New("phone number is required")

	// ErrLockTimeout is returned when the per-phone lock cannot be acquired.
	ErrLockTimeout = errors.New("enquiry lock not acquired")
)

// InvalidStatusError names the rejected value and the allowed set.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	allowed := make([]string, len(Statuses))
	for i, s := range Statuses {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("Invalid status. Must be one of: %s", strings.Join(allowed, ", "))
}

func (e *InvalidStatusError) Unwrap() error {
	return ErrInvalidStatus
}
