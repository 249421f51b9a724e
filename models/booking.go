package models

import "time"

// Service types offered by the booking form.
const (
	ServiceCounselor = "counselor"
	ServiceHelpline  = "helpline"
)

// TimeSlots are the appointment times a booking may request.
var TimeSlots = []string{
	"9:00 AM",
	"10:00 AM",
	"11:00 AM",
	"12:00 PM",
	"1:00 PM",
	"2:00 PM",
	"3:00 PM",
	"4:00 PM",
}

// Booking represents a persisted appointment request in a user's ledger.
type Booking struct {
	ID          string    `firestore:"id" bson:"id" json:"id"`                            // Client-generated, time-derived
	ServiceType string    `firestore:"serviceType" bson:"serviceType" json:"serviceType"` // "counselor" or "helpline"
	Date        string    `firestore:"date" bson:"date" json:"date"`                      // "YYYY-MM-DD"
	Time        string    `firestore:"time" bson:"time" json:"time"`                      // One of TimeSlots
	Note        string    `firestore:"note" bson:"note" json:"note"`                      // Optional free text
	CreatedAt   time.Time `firestore:"createdAt" bson:"createdAt" json:"createdAt"`
}

// BookingForm carries the fields a user submits from the booking modal.
type BookingForm struct {
	ServiceType string `json:"serviceType" validate:"required,oneof=counselor helpline"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string `json:"time" validate:"required,timeslot"`
	Note        string `json:"note" validate:"max=2000"`
}
