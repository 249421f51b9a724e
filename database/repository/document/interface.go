package documentRepo

import (
	"context"
	"errors"

	"unmute/models"
)

var (
	// ErrNotFound is returned by Get when the user's document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrVersionConflict is returned by SetIfVersion when the stored version moved.
	ErrVersionConflict = errors.New("document version conflict")
)

// Store is the per-user remote document service. One document per user,
// addressed by the user's stable identifier.
type Store interface {
	// Get returns the current document or ErrNotFound.
	Get(ctx context.Context, userID string) (*models.SessionDocument, error)
	// Set shallow-merges the patch fields into the document, creating it if needed.
	Set(ctx context.Context, userID string, patch Patch) error
	// Subscribe calls onChange with every new document state until unsubscribed.
	Subscribe(ctx context.Context, userID string, onChange func(*models.SessionDocument)) (func(), error)
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// VersionedStore is implemented by backends that support compare-and-set writes.
type VersionedStore interface {
	Store
	// SetIfVersion merges the patch only if the stored version equals version.
	// A version of 0 requires the document to be absent.
	SetIfVersion(ctx context.Context, userID string, patch Patch, version int64) error
}

// ArrayAppender is implemented by backends with an atomic list-union primitive.
type ArrayAppender interface {
	Store
	AppendBookings(ctx context.Context, userID string, bookings ...models.Booking) error
}
