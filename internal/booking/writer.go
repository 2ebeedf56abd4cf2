package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"andaman_booking_echo/internal/metrics"
	"andaman_booking_echo/internal/models"
)

// RecordWriter persists booking records. It writes at most one record per
// payment: the unique payment_id index backs the existence check.
type RecordWriter struct {
	db      *gorm.DB
	log     *logrus.Logger
	metrics *metrics.Collectors
	now     func() time.Time
}

func NewRecordWriter(db *gorm.DB, log *logrus.Logger, m *metrics.Collectors) *RecordWriter {
	return &RecordWriter{db: db, log: log, metrics: m, now: time.Now}
}

// NewBookingNumber returns a customer-facing reference such as AE-1F3C9A02.
func NewBookingNumber() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "AE-" + strings.ToUpper(id[:8])
}

// Find returns the record for paymentID, or nil when there is none.
func (w *RecordWriter) Find(ctx context.Context, paymentID uint) (*models.BookingRecord, error) {
	var rec models.BookingRecord
	err := w.db.WithContext(ctx).
		Preload("Items").
		Preload("Passengers").
		Where("payment_id = ?", paymentID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Write stores the booking for payment. created is false when a record for
// the payment already existed, in which case that record is returned and
// nothing is written. result is nil for bookings without a ferry leg.
func (w *RecordWriter) Write(
	ctx context.Context,
	req *BookingRequest,
	payment *models.PaymentRecord,
	result *ProviderBookingResult,
	cls *Classification,
) (*models.BookingRecord, bool, error) {
	existing, err := w.Find(ctx, payment.ID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrRecordWrite, err)
	}
	if existing != nil {
		return existing, false, nil
	}

	rec := w.build(req, payment, result, cls)
	if err := w.db.WithContext(ctx).Create(rec).Error; err != nil {
		// Lost a race with another writer for the same payment.
		if existing, findErr := w.Find(ctx, payment.ID); findErr == nil && existing != nil {
			return existing, false, nil
		}
		w.log.WithFields(logrus.Fields{
			"merchant_order_id": payment.MerchantOrderID,
			"payment_id":        payment.ID,
		}).WithError(err).Error("failed to write booking record")
		return nil, false, fmt.Errorf("%w: %v", ErrRecordWrite, err)
	}

	w.metrics.BookingRecord(string(rec.Status))
	w.log.WithFields(logrus.Fields{
		"merchant_order_id": payment.MerchantOrderID,
		"payment_id":        payment.ID,
		"booking_number":    rec.BookingNumber,
		"status":            rec.Status,
	}).Info("booking record created")
	return rec, true, nil
}

func (w *RecordWriter) build(
	req *BookingRequest,
	payment *models.PaymentRecord,
	result *ProviderBookingResult,
	cls *Classification,
) *models.BookingRecord {
	now := w.now()

	rec := &models.BookingRecord{
		BookingNumber:   NewBookingNumber(),
		BookingType:     req.Type,
		Status:          models.BookingStatusConfirmed,
		PaymentStatus:   models.BookingPaymentPaid,
		PaymentID:       payment.ID,
		MerchantOrderID: payment.MerchantOrderID,
		CustomerName:    firstNonEmpty(req.Customer.Name, payment.CustomerName),
		CustomerEmail:   firstNonEmpty(req.Customer.Email, payment.CustomerEmail),
		CustomerPhone:   firstNonEmpty(req.Customer.Phone, payment.CustomerPhone),
		Currency:        firstNonEmpty(req.Currency, payment.Currency, "INR"),
		EmailUpdates:    true,
		WhatsAppUpdates: true,
	}

	subtotal := decimal.Zero
	if leg := req.Ferry; leg != nil {
		item := models.BookingItem{
			ItemType:      models.BookingTypeFerry,
			Operator:      leg.Operator,
			FerryID:       leg.FerryID,
			ScheduleID:    leg.ScheduleID,
			FromLocation:  leg.From,
			ToLocation:    leg.To,
			TravelDate:    leg.TravelDate,
			DepartureTime: leg.DepartureTime,
			ClassID:       leg.ClassID,
			ClassName:     leg.ClassName,
			Seats:         leg.Seats,
			Quantity:      len(req.Passengers),
			Price:         leg.Price,
		}
		if result == nil {
			result = Failed("ferry operator was not contacted")
		}
		item.ProviderBooking = providerBooking(result, cls, now)
		if !result.Success {
			rec.Status = models.BookingStatusPending
		}
		subtotal = subtotal.Add(leg.Price)
		rec.Items = append(rec.Items, item)
	}

	for _, extra := range req.Items {
		rec.Items = append(rec.Items, models.BookingItem{
			ItemType:   extra.Type,
			Title:      extra.Title,
			TravelDate: extra.Date,
			Slot:       extra.Slot,
			Quantity:   extra.Quantity,
			Price:      extra.Price,
			ProviderBooking: models.ProviderBooking{
				BookingStatus: models.ProviderBookingConfirmed,
			},
		})
		subtotal = subtotal.Add(extra.Price)
	}

	if subtotal.IsZero() {
		subtotal = req.TotalAmount
	}
	if subtotal.IsZero() {
		subtotal = payment.Amount
	}
	rec.Subtotal = subtotal
	rec.Fees = decimal.Zero
	rec.Taxes = decimal.Zero
	rec.Total = subtotal

	primary := req.Primary()
	for i, p := range req.Passengers {
		rec.Passengers = append(rec.Passengers, models.Passenger{
			FullName:       p.FullName,
			Age:            p.Age,
			Gender:         p.Gender,
			Nationality:    p.Nationality,
			DocumentType:   p.DocumentType,
			DocumentNumber: p.DocumentNumber,
			Email:          p.Email,
			Phone:          p.Phone,
			SeatNumber:     p.SeatNumber,
			IsPrimary:      primary == &req.Passengers[i],
		})
	}
	return rec
}

func providerBooking(result *ProviderBookingResult, cls *Classification, at time.Time) models.ProviderBooking {
	pb := models.ProviderBooking{
		Attempts:    1,
		AttemptedAt: &at,
	}
	if len(result.RawResponse) > 0 {
		pb.RawResponse = datatypes.JSON(result.RawResponse)
	}
	if result.Success {
		pb.BookingStatus = models.ProviderBookingConfirmed
		pb.ProviderBookingID = result.ProviderBookingID
		pb.PNR = result.PNR
		return pb
	}

	pb.BookingStatus = models.ProviderBookingFailed
	pb.ErrorMessage = result.Error
	if cls != nil {
		pb.ErrorType = string(cls.ErrorType)
		pb.RequiresRefund = cls.RequiresRefund
	}
	return pb
}

// ApplyRetry records a further provider attempt on the ferry item. Earlier
// error messages are kept; a success promotes the booking to confirmed.
func (w *RecordWriter) ApplyRetry(
	ctx context.Context,
	rec *models.BookingRecord,
	result *ProviderBookingResult,
	cls *Classification,
) error {
	item := rec.FerryItem()
	if item == nil {
		return ErrNothingToRetry
	}

	now := w.now()
	pb := &item.ProviderBooking
	pb.Attempts++
	pb.AttemptedAt = &now
	if len(result.RawResponse) > 0 {
		pb.RawResponse = datatypes.JSON(result.RawResponse)
	}

	if result.Success {
		pb.BookingStatus = models.ProviderBookingConfirmed
		pb.ProviderBookingID = result.ProviderBookingID
		pb.PNR = result.PNR
		pb.RequiresRefund = false
		rec.Status = models.BookingStatusConfirmed
	} else {
		if pb.ErrorMessage == "" {
			pb.ErrorMessage = result.Error
		} else if result.Error != "" {
			pb.ErrorMessage += "\n" + result.Error
		}
		if cls != nil {
			pb.ErrorType = string(cls.ErrorType)
			pb.RequiresRefund = cls.RequiresRefund
		}
	}

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(item).Error; err != nil {
			return err
		}
		return tx.Model(rec).Update("status", rec.Status).Error
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecordWrite, err)
	}
	return nil
}
