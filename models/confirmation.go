package models

// CounselorContact is the static contact metadata shown once a booking is confirmed.
type CounselorContact struct {
	ServiceType string `json:"serviceType"`
	Label       string `json:"label"` // Display name of the service
	Name        string `json:"name"`  // Counselor or line name
	Phone       string `json:"phone"`
	Email       string `json:"email,omitempty"`
	Location    string `json:"location,omitempty"`
	Hours       string `json:"hours"`
}

// Confirmation is returned after a booking has been durably appended.
type Confirmation struct {
	Booking Booking          `json:"booking"`
	Contact CounselorContact `json:"contact"`
	Message string           `json:"message"`
}
