package booking

import (
	"regexp"
	"strings"

	"andaman_booking_echo/internal/models"
)

type ErrorType string

const (
	ErrorTypeSeatUnavailable ErrorType = "SEAT_UNAVAILABLE"
	ErrorTypeCapacityFull    ErrorType = "CAPACITY_FULL"
	ErrorTypeScheduleIssue   ErrorType = "SCHEDULE_ISSUE"
	ErrorTypeTechnical       ErrorType = "TECHNICAL_ERROR"
	ErrorTypeUnknown         ErrorType = "UNKNOWN"
)

// Classification is computed per provider failure. Only ErrorType and
// RequiresRefund are persisted, on the ferry item's provider booking.
type Classification struct {
	ErrorType      ErrorType `json:"errorType"`
	RequiresRefund bool      `json:"requiresRefund"`
	UserMessage    string    `json:"userMessage"`
}

// Render substitutes the booking and transaction references into the message.
func (c Classification) Render(bookingRef, transactionID string) string {
	return strings.NewReplacer(
		"{bookingId}", bookingRef,
		"{transactionId}", transactionID,
	).Replace(c.UserMessage)
}

type classificationRule struct {
	errorType ErrorType
	refund    bool
	phrases   []string
	pattern   *regexp.Regexp
	message   string
}

func (r classificationRule) matches(msg string) bool {
	for _, phrase := range r.phrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return r.pattern != nil && r.pattern.MatchString(msg)
}

// classificationRules is evaluated top to bottom; the first match wins.
var classificationRules = []classificationRule{
	{
		errorType: ErrorTypeSeatUnavailable,
		refund:    true,
		phrases:   []string{"seat", "already booked", "berth"},
		message: "The seats you selected for your {bookingType} were taken before we could confirm them with the operator.\n" +
			"Your payment was received (transaction {transactionId}) and will be refunded in full.\n" +
			"Booking reference: {bookingId}. Our team will contact you about alternative seats.",
	},
	{
		errorType: ErrorTypeCapacityFull,
		refund:    true,
		phrases: []string{
			"capacity", "sold out", "fully booked", "house full", "no vacancy",
			"not enough", "insufficient availability",
		},
		message: "This sailing filled up before your {bookingType} could be confirmed.\n" +
			"Your payment was received (transaction {transactionId}) and will be refunded in full.\n" +
			"Booking reference: {bookingId}. We can help you pick another departure.",
	},
	{
		errorType: ErrorTypeScheduleIssue,
		refund:    true,
		phrases: []string{
			"schedule", "trip cancelled", "trip canceled", "departed", "not operating",
			"invalid date", "invalid route", "route not available", "route closed", "route cancelled", "timing",
		},
		message: "The operator reported a schedule change for this sailing, so your {bookingType} could not be confirmed.\n" +
			"Your payment was received (transaction {transactionId}) and is eligible for a full refund.\n" +
			"Booking reference: {bookingId}. Our team will reach out with options.",
	},
	{
		errorType: ErrorTypeTechnical,
		refund:    false,
		phrases: []string{
			"timeout", "timed out", "deadline exceeded", "network", "connection", "no route to host", "dial tcp",
			"server error", "internal error", "unavailable", "authentication", "token",
			"invalid response", "malformed",
		},
		pattern: regexp.MustCompile(`\b5\d\d\b`),
		message: "We could not reach the ferry operator to confirm your {bookingType}.\n" +
			"Your payment was received (transaction {transactionId}) and your booking {bookingId} is pending manual confirmation.\n" +
			"Our team will confirm your seats or contact you shortly.",
	},
}

var unknownRule = classificationRule{
	errorType: ErrorTypeUnknown,
	refund:    false,
	message: "Your payment was received (transaction {transactionId}) but your {bookingType} could not be confirmed automatically.\n" +
		"Booking {bookingId} is pending review by our team.\n" +
		"Please contact support with your booking reference if you have questions.",
}

// Classify maps a provider failure message to an error type. It is total:
// anything unmatched is UNKNOWN.
func Classify(message string, bookingType models.BookingType) Classification {
	msg := strings.ToLower(message)
	rule := unknownRule
	for _, r := range classificationRules {
		if r.matches(msg) {
			rule = r
			break
		}
	}
	return rule.classification(bookingType)
}

// ClassifyResult classifies a failed provider result. Infrastructure failures
// skip the phrase table, since transport and 5xx text is not the operator's
// verdict on the booking.
func ClassifyResult(res *ProviderBookingResult, bookingType models.BookingType) Classification {
	if res == nil {
		return ClassificationFor(ErrorTypeTechnical, bookingType)
	}
	if res.Infrastructure {
		return ClassificationFor(ErrorTypeTechnical, bookingType)
	}
	return Classify(res.Error, bookingType)
}

// ClassificationFor rebuilds the classification of a stored error type.
func ClassificationFor(errorType ErrorType, bookingType models.BookingType) Classification {
	for _, r := range classificationRules {
		if r.errorType == errorType {
			return r.classification(bookingType)
		}
	}
	return unknownRule.classification(bookingType)
}

func (r classificationRule) classification(bookingType models.BookingType) Classification {
	label := "ferry booking"
	if bookingType == models.BookingTypeActivity || bookingType == models.BookingTypeBoat {
		label = string(bookingType) + " booking"
	}
	return Classification{
		ErrorType:      r.errorType,
		RequiresRefund: r.refund,
		UserMessage:    strings.ReplaceAll(r.message, "{bookingType}", label),
	}
}
