package models

import "time"

// Sender identifies who authored a transcript entry.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one entry of a user's chat transcript.
type Message struct {
	ID        string    `firestore:"id" bson:"id" json:"id"`                      // Assigned once at creation (UUID)
	Text      string    `firestore:"text" bson:"text" json:"text"`                // Message body
	Sender    Sender    `firestore:"sender" bson:"sender" json:"sender"`          // "user" or "assistant"
	CreatedAt time.Time `firestore:"createdAt" bson:"createdAt" json:"createdAt"` // Local creation time

	// Local-only bookkeeping, never persisted.
	Seq     uint64 `firestore:"-" bson:"-" json:"seq,omitempty"`     // Monotonic local append order
	Pending bool   `firestore:"-" bson:"-" json:"pending,omitempty"` // Not yet observed in a remote snapshot
}

// Turn is a single history entry handed to a response gateway.
type Turn struct {
	Role Sender `json:"role"`
	Text string `json:"text"`
}
