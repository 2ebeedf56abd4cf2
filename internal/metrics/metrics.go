package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors holds the reconciliation flow metrics. A nil *Collectors is
// valid and records nothing, which keeps tests and the CLI free of a registry.
type Collectors struct {
	statusChecks     *prometheus.CounterVec
	providerBookings *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	classifications  *prometheus.CounterVec
	bookingRecords   *prometheus.CounterVec
	duplicates       prometheus.Counter
}

func New(registry *prometheus.Registry) *Collectors {
	factory := promauto.With(registry)

	return &Collectors{
		statusChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_status_checks_total",
				Help: "Gateway status checks by gateway and resulting state",
			},
			[]string{"gateway", "state"},
		),
		providerBookings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ferry_provider_bookings_total",
				Help: "Ferry operator booking calls by operator and outcome",
			},
			[]string{"operator", "outcome"},
		),
		providerLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ferry_provider_booking_seconds",
				Help:    "Latency of ferry operator booking calls",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
			},
			[]string{"operator"},
		),
		classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_failure_classifications_total",
				Help: "Provider failures by classified error type",
			},
			[]string{"error_type"},
		),
		bookingRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_records_created_total",
				Help: "Booking records written by status",
			},
			[]string{"status"},
		),
		duplicates: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "booking_reconcile_duplicates_total",
				Help: "Reconciliations that found an existing booking record",
			},
		),
	}
}

func (c *Collectors) StatusCheck(gateway, state string) {
	if c == nil {
		return
	}
	c.statusChecks.WithLabelValues(gateway, state).Inc()
}

// ProviderBooking records one operator call. outcome is "success", "failure"
// or "error".
func (c *Collectors) ProviderBooking(operator, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.providerBookings.WithLabelValues(operator, outcome).Inc()
	c.providerLatency.WithLabelValues(operator).Observe(elapsed.Seconds())
}

func (c *Collectors) Classification(errorType string) {
	if c == nil {
		return
	}
	c.classifications.WithLabelValues(errorType).Inc()
}

func (c *Collectors) BookingRecord(status string) {
	if c == nil {
		return
	}
	c.bookingRecords.WithLabelValues(status).Inc()
}

func (c *Collectors) Duplicate() {
	if c == nil {
		return
	}
	c.duplicates.Inc()
}
