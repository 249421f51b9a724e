package documentRepo

import (
	"fmt"

	"unmute/models"
)

// Patch names the top-level document fields a merge-write replaces. Keys are
// models.FieldMessages / models.FieldBookings; values the matching slice type.
type Patch map[string]interface{}

// MessagesPatch builds a patch replacing the transcript field.
func MessagesPatch(messages []models.Message) Patch {
	return Patch{models.FieldMessages: persistableMessages(messages)}
}

// BookingsPatch builds a patch replacing the booking ledger field.
func BookingsPatch(bookings []models.Booking) Patch {
	return Patch{models.FieldBookings: cloneBookings(bookings)}
}

// Validate checks that every key is known and carries the right type.
func (p Patch) Validate() error {
	for k, v := range p {
		switch k {
		case models.FieldMessages:
			if _, ok := v.([]models.Message); !ok {
				return fmt.Errorf("patch field %q: unexpected type %T", k, v)
			}
		case models.FieldBookings:
			if _, ok := v.([]models.Booking); !ok {
				return fmt.Errorf("patch field %q: unexpected type %T", k, v)
			}
		default:
			return fmt.Errorf("patch field %q is not part of the session document", k)
		}
	}
	return nil
}

// ApplyPatch merges p into doc. Fields absent from p are left untouched.
func ApplyPatch(doc *models.SessionDocument, p Patch) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if v, ok := p[models.FieldMessages]; ok {
		doc.Messages = persistableMessages(v.([]models.Message))
	}
	if v, ok := p[models.FieldBookings]; ok {
		doc.Bookings = cloneBookings(v.([]models.Booking))
	}
	return nil
}

// CloneDocument returns a deep copy so callers never share slices with a store.
func CloneDocument(doc *models.SessionDocument) *models.SessionDocument {
	if doc == nil {
		return nil
	}
	return &models.SessionDocument{
		Messages: persistableMessages(doc.Messages),
		Bookings: cloneBookings(doc.Bookings),
		Version:  doc.Version,
	}
}

// persistableMessages copies messages and strips local-only bookkeeping.
func persistableMessages(in []models.Message) []models.Message {
	out := make([]models.Message, len(in))
	for i, m := range in {
		m.Seq = 0
		m.Pending = false
		out[i] = m
	}
	return out
}

func cloneBookings(in []models.Booking) []models.Booking {
	out := make([]models.Booking, len(in))
	copy(out, in)
	return out
}
