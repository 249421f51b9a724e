package booking

import "unmute/models"

// contactDirectory is the static counselor-contact lookup keyed by service type.
var contactDirectory = map[string]models.CounselorContact{
	models.ServiceCounselor: {
		ServiceType: models.ServiceCounselor,
		Label:       "On-campus Counselor",
		Name:        "Campus Wellness Center",
		Phone:       "+1 (555) 010-2040",
		Email:       "counseling@wellness.example.edu",
		Location:    "Student Services Building, Room 204",
		Hours:       "Mon-Fri, 9:00 AM - 5:00 PM",
	},
	models.ServiceHelpline: {
		ServiceType: models.ServiceHelpline,
		Label:       "Mental Health Helpline",
		Name:        "24/7 Support Line",
		Phone:       "988",
		Hours:       "24 hours, 7 days a week",
	},
}

// ContactFor returns the contact metadata for a service type.
func ContactFor(serviceType string) (models.CounselorContact, bool) {
	c, ok := contactDirectory[serviceType]
	return c, ok
}

// Services lists every bookable service in a stable order.
func Services() []models.CounselorContact {
	return []models.CounselorContact{
		contactDirectory[models.ServiceCounselor],
		contactDirectory[models.ServiceHelpline],
	}
}

func confirm(b models.Booking) *models.Confirmation {
	contact, _ := ContactFor(b.ServiceType)
	return &models.Confirmation{
		Booking: b,
		Contact: contact,
		Message: NoticeBooked,
	}
}
