package models

// Document field names shared by every store backend.
const (
	FieldMessages = "messages"
	FieldBookings = "bookings"
)

// SessionDocument is the single per-user document holding both the chat
// transcript and the booking ledger.
type SessionDocument struct {
	Messages []Message `firestore:"messages" bson:"messages" json:"messages"`
	Bookings []Booking `firestore:"bookings" bson:"bookings" json:"bookings"`

	// Version is the backend's concurrency token; 0 means the document does not exist.
	Version int64 `firestore:"-" bson:"version" json:"version"`
}
