package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrFerryIDMissing stops the pipeline before any operator is contacted.
	ErrFerryIDMissing = errors.New("ferry id missing from booking data")

	// ErrBookingDataUnavailable means the stored payload could not be decoded.
	ErrBookingDataUnavailable = errors.New("booking data unavailable")

	ErrUnsupportedBookingType = errors.New("unsupported booking type")
	ErrPaymentNotFound        = errors.New("payment record not found")
	ErrBookingNotFound        = errors.New("booking record not found")
	ErrNothingToRetry         = errors.New("booking has no failed ferry item")

	// ErrRecordWrite is the one state the customer must be told about: the
	// payment was captured but no booking record could be stored.
	ErrRecordWrite = errors.New("booking record could not be written")
)

// ValidationError reports a required field that is absent or malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid booking data: %s %s", e.Field, e.Reason)
}

// IsBookingDataError reports whether err came from decoding or validating the
// stored payload, as opposed to infrastructure.
func IsBookingDataError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrFerryIDMissing) ||
		errors.Is(err, ErrBookingDataUnavailable) ||
		errors.Is(err, ErrUnsupportedBookingType)
}
