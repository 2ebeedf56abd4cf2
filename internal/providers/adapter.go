package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/metrics"
)

// BookingAdapter is the reconciler's entry point to the operators. It always
// returns a result: lookup failures, errors, timeouts and panics all become
// a failed result, because the payment is already captured and a record must
// be written.
type BookingAdapter struct {
	registry *Registry
	timeout  time.Duration
	log      *logrus.Logger
	metrics  *metrics.Collectors
}

func NewBookingAdapter(registry *Registry, timeout time.Duration, log *logrus.Logger, m *metrics.Collectors) *BookingAdapter {
	return &BookingAdapter{registry: registry, timeout: timeout, log: log, metrics: m}
}

func (a *BookingAdapter) BookFerry(ctx context.Context, req *booking.BookingRequest) (result *booking.ProviderBookingResult) {
	if req.Ferry == nil {
		return booking.InfrastructureFailure("booking has no ferry leg")
	}
	operator := req.Ferry.Operator
	fields := logrus.Fields{
		"operator":          operator,
		"ferry_id":          req.Ferry.FerryID,
		"payment_reference": req.PaymentReference,
	}

	provider, err := a.registry.Get(operator)
	if err != nil {
		a.log.WithFields(fields).WithError(err).Error("no provider for operator")
		a.metrics.ProviderBooking(operator, "error", 0)
		return booking.InfrastructureFailure(err.Error())
	}

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			a.log.WithFields(fields).Errorf("provider panicked: %v", p)
			result = booking.InfrastructureFailure(fmt.Sprintf("internal error while booking: %v", p))
			a.metrics.ProviderBooking(operator, "error", time.Since(start))
		}
	}()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	a.log.WithFields(fields).Info("booking ferry with operator")
	res, err := provider.BookFerry(ctx, req)
	elapsed := time.Since(start)
	fields["duration_ms"] = elapsed.Milliseconds()

	switch {
	case err != nil:
		a.metrics.ProviderBooking(operator, "error", elapsed)
		a.log.WithFields(fields).WithError(err).Error("ferry operator call failed")
		return booking.InfrastructureFailure(err.Error())
	case res == nil:
		a.metrics.ProviderBooking(operator, "error", elapsed)
		return booking.InfrastructureFailure("ferry operator returned no result")
	case !res.Success:
		a.metrics.ProviderBooking(operator, "failure", elapsed)
		a.log.WithFields(fields).WithField("provider_error", res.Error).Warn("ferry operator rejected booking")
	default:
		a.metrics.ProviderBooking(operator, "success", elapsed)
		a.log.WithFields(fields).WithField("pnr", res.PNR).Info("ferry booked")
	}
	return res
}
