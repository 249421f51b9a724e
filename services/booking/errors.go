package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidBooking rejects a form with missing or malformed required fields.
	ErrInvalidBooking = errors.New("invalid booking")
	// ErrSubmissionInProgress rejects a submit while another one is pending.
	ErrSubmissionInProgress = errors.New("a booking submission is already in progress")
	// ErrOffline is the failure recorded when the pre-flight online check fails.
	ErrOffline = errors.New("offline: booking not attempted")
	// ErrConflict means every optimistic-concurrency retry lost a race.
	ErrConflict = errors.New("booking ledger changed concurrently, retries exhausted")
)

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", ErrInvalidBooking, e.Fields)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidBooking }
