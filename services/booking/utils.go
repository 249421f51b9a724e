package booking

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"unmute/models"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	if err := v.RegisterValidation("timeslot", func(fl validator.FieldLevel) bool {
		return slices.Contains(models.TimeSlots, fl.Field().String())
	}); err != nil {
		panic(fmt.Sprintf("register timeslot validation: %v", err))
	}
	return v
}

// validateForm checks the required booking fields before any network work.
func validateForm(form models.BookingForm) error {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidBooking, err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			fields[fe.Field()] = "is required"
		} else {
			fields[fe.Field()] = fmt.Sprintf("failed %q validation", fe.Tag())
		}
	}
	return &ValidationError{Fields: fields}
}

// newBookingID returns a time-derived identifier, unique with high probability.
func newBookingID(now time.Time) string {
	return fmt.Sprintf("bk_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}
