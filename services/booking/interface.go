package booking

import (
	"context"
	"time"

	"unmute/models"
)

// State is the submission state machine: Idle -> Submitting -> {Succeeded, Failed, TimedOut} -> Idle.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StateSucceeded  State = "succeeded"
	StateFailed     State = "failed"
	StateTimedOut   State = "timed_out"
)

// AppendMode selects how a booking is added to the shared ledger.
type AppendMode string

const (
	// AppendVersioned re-reads and retries on a version conflict.
	AppendVersioned AppendMode = "versioned"
	// AppendAtomic uses the store's list-union primitive.
	AppendAtomic AppendMode = "atomic"
	// AppendMerge is a plain read-modify-write; concurrent appends can be lost.
	AppendMerge AppendMode = "merge"
)

// OnlineChecker reports whether the backing store is believed reachable.
type OnlineChecker interface {
	Online(ctx context.Context) bool
}

// Config tunes a Writer.
type Config struct {
	// Timeout is the liveness bound on the Submitting state.
	Timeout time.Duration
	// OperationTimeout bounds the detached read-modify-write itself. Defaults to 6x Timeout.
	OperationTimeout time.Duration
	AppendMode       AppendMode
	MaxRetries       int
	// NoticeTTL is how long a status notice stays visible.
	NoticeTTL time.Duration
}

// Outcome is the terminal result of one submission attempt.
type Outcome struct {
	State        State                `json:"state"`
	Booking      *models.Booking      `json:"booking,omitempty"`
	Confirmation *models.Confirmation `json:"confirmation,omitempty"`
	Notice       string               `json:"notice"`
	// Form is what the booking form should show afterwards; reset on success.
	Form models.BookingForm `json:"form"`
	Err  error              `json:"-"`
}

// User-facing status notices.
const (
	NoticeBooked   = "Your session has been booked confidentially."
	NoticeError    = "Error booking session. Please try again."
	NoticeOffline  = "Unable to book right now. Please try again shortly."
	NoticeTimedOut = "Request timed out, please try again."
)
