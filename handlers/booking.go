package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"unmute/models"
	"unmute/services/booking"
	"unmute/services/session"
	"unmute/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BookingHandler exposes the booking ledger writer over HTTP.
type BookingHandler struct {
	manager *session.Manager
	logger  *zap.Logger
}

func NewBookingHandler(manager *session.Manager, logger *zap.Logger) *BookingHandler {
	return &BookingHandler{manager: manager, logger: logger}
}

type servicesResponse struct {
	Services  []models.CounselorContact `json:"services"`
	TimeSlots []string                  `json:"timeSlots"`
}

type bookingsResponse struct {
	Bookings []models.Booking `json:"bookings"`
}

// SubmitBooking handles POST /api/bookings.
func (h *BookingHandler) SubmitBooking(c *gin.Context) {
	var form models.BookingForm
	if err := c.ShouldBindJSON(&form); err != nil {
		utils.JSONError(c, h.logger, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	sess, ok := openSession(c, h.manager, h.logger)
	if !ok {
		return
	}

	out, err := sess.Booker.Submit(c.Request.Context(), form)
	if err != nil {
		var verr *booking.ValidationError
		switch {
		case errors.As(err, &verr):
			utils.JSONError(c, h.logger, http.StatusBadRequest, "Please complete all required fields", describeFields(verr.Fields))
		case errors.Is(err, booking.ErrInvalidBooking):
			utils.JSONError(c, h.logger, http.StatusBadRequest, "Please complete all required fields", err.Error())
		case errors.Is(err, booking.ErrSubmissionInProgress):
			utils.JSONError(c, h.logger, http.StatusConflict, "A booking is already being submitted", "")
		default:
			utils.JSONError(c, h.logger, http.StatusInternalServerError, booking.NoticeError, err.Error())
		}
		return
	}

	c.JSON(statusFor(out), out)
}

func statusFor(out *booking.Outcome) int {
	switch out.State {
	case booking.StateSucceeded:
		return http.StatusCreated
	case booking.StateTimedOut:
		return http.StatusGatewayTimeout
	}
	if errors.Is(out.Err, booking.ErrConflict) {
		return http.StatusConflict
	}
	return http.StatusServiceUnavailable
}

func describeFields(fields map[string]string) string {
	parts := make([]string, 0, len(fields))
	for name, reason := range fields {
		parts = append(parts, fmt.Sprintf("%s %s", name, reason))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// ListBookings handles GET /api/bookings.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	sess, ok := openSession(c, h.manager, h.logger)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, bookingsResponse{Bookings: sess.Bookings()})
}

// ListServices handles GET /api/bookings/services.
func (h *BookingHandler) ListServices(c *gin.Context) {
	c.JSON(http.StatusOK, servicesResponse{Services: booking.Services(), TimeSlots: models.TimeSlots})
}
