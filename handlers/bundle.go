package handlers

import (
	"github.com/gin-gonic/gin"
)

// HandlerBundle groups the endpoint handlers registered by routes.
type HandlerBundle struct {
	// Chat endpoints
	GetTranscript gin.HandlerFunc
	SendMessage   gin.HandlerFunc
	SendVoice     gin.HandlerFunc
	Stream        gin.HandlerFunc

	// Booking endpoints
	SubmitBooking gin.HandlerFunc
	ListBookings  gin.HandlerFunc
	ListServices  gin.HandlerFunc

	// Session endpoints
	SignOut gin.HandlerFunc

	Health gin.HandlerFunc
}
