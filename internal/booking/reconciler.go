package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"andaman_booking_echo/internal/events"
	"andaman_booking_echo/internal/gateway"
	"andaman_booking_echo/internal/metrics"
	"andaman_booking_echo/internal/models"
)

const defaultLockTTL = 60 * time.Second

// StatusChecker asks the payment's gateway for its authoritative state.
type StatusChecker interface {
	CheckStatus(ctx context.Context, payment *models.PaymentRecord) (*gateway.Status, error)
}

// FerryBooker reserves seats with the operator. Implementations never return
// an error: infrastructure failures come back as a failed result.
type FerryBooker interface {
	BookFerry(ctx context.Context, req *BookingRequest) *ProviderBookingResult
}

// Notifier tells the customer about a newly written or newly confirmed booking.
type Notifier interface {
	BookingCreated(ctx context.Context, rec *models.BookingRecord, cls *Classification) error
}

type ReconcilerConfig struct {
	DB        *gorm.DB
	Log       *logrus.Logger
	Status    StatusChecker
	Booker    FerryBooker
	Locker    Locker
	Publisher events.Publisher
	Notifier  Notifier
	Metrics   *metrics.Collectors
	LockTTL   time.Duration
}

// Outcome is what one reconciliation found and did.
type Outcome struct {
	Payment        *models.PaymentRecord
	State          gateway.State
	TransactionID  string
	Booking        *models.BookingRecord
	Provider       *ProviderBookingResult
	Classification *Classification
	Duplicate      bool
}

// Reconciler runs the post-payment pipeline: status check, payload parse,
// operator booking and record write.
type Reconciler struct {
	db        *gorm.DB
	log       *logrus.Logger
	status    StatusChecker
	booker    FerryBooker
	locker    Locker
	publisher events.Publisher
	notifier  Notifier
	metrics   *metrics.Collectors
	lockTTL   time.Duration
	parser    *Parser
	writer    *RecordWriter
}

func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Locker == nil {
		cfg.Locker = NewLocalLocker()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.NopPublisher{}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &Reconciler{
		db:        cfg.DB,
		log:       cfg.Log,
		status:    cfg.Status,
		booker:    cfg.Booker,
		locker:    cfg.Locker,
		publisher: cfg.Publisher,
		notifier:  cfg.Notifier,
		metrics:   cfg.Metrics,
		lockTTL:   cfg.LockTTL,
		parser:    NewParser(cfg.Log),
		writer:    NewRecordWriter(cfg.DB, cfg.Log, cfg.Metrics),
	}
}

func (r *Reconciler) Writer() *RecordWriter { return r.writer }

func lockKey(merchantOrderID string) string {
	return "reconcile:" + merchantOrderID
}

// FindPayment loads a payment by merchant order id.
func (r *Reconciler) FindPayment(ctx context.Context, merchantOrderID string) (*models.PaymentRecord, error) {
	var payment models.PaymentRecord
	err := r.db.WithContext(ctx).Where("merchant_order_id = ?", merchantOrderID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load payment %s: %w", merchantOrderID, err)
	}
	return &payment, nil
}

// Reconcile checks the gateway for merchantOrderID and, once the payment is
// captured, makes sure exactly one booking record exists for it. It is safe to
// call any number of times, concurrently.
func (r *Reconciler) Reconcile(ctx context.Context, merchantOrderID string) (*Outcome, error) {
	payment, err := r.FindPayment(ctx, merchantOrderID)
	if err != nil {
		return nil, err
	}

	status, err := r.status.CheckStatus(ctx, payment)
	if err != nil {
		r.metrics.StatusCheck(string(payment.Gateway), "error")
		if payment.Status != models.PaymentStatusSuccess {
			return nil, err
		}
		// Capture was already recorded; the booking can proceed without the
		// gateway.
		r.log.WithFields(logrus.Fields{
			"merchant_order_id": merchantOrderID,
		}).WithError(err).Warn("status check failed for captured payment, continuing")
		status = &gateway.Status{State: gateway.StateCompleted, TransactionID: payment.GatewayTransactionID}
	} else {
		r.metrics.StatusCheck(string(payment.Gateway), string(status.State))
		r.recordStatus(ctx, payment, status)
	}

	out := &Outcome{Payment: payment, State: status.State, TransactionID: status.TransactionID}
	if out.TransactionID == "" {
		out.TransactionID = payment.GatewayTransactionID
	}
	if status.State != gateway.StateCompleted {
		return out, nil
	}
	return r.confirm(ctx, out)
}

// ConfirmPaid runs the booking half of the pipeline for a payment whose
// capture is already proven, e.g. by a verified gateway signature.
func (r *Reconciler) ConfirmPaid(ctx context.Context, payment *models.PaymentRecord, transactionID string) (*Outcome, error) {
	r.recordStatus(ctx, payment, &gateway.Status{State: gateway.StateCompleted, TransactionID: transactionID})
	out := &Outcome{
		Payment:       payment,
		State:         gateway.StateCompleted,
		TransactionID: firstNonEmpty(transactionID, payment.GatewayTransactionID),
	}
	return r.confirm(ctx, out)
}

func (r *Reconciler) confirm(ctx context.Context, out *Outcome) (*Outcome, error) {
	payment := out.Payment
	fields := logrus.Fields{
		"merchant_order_id": payment.MerchantOrderID,
		"payment_id":        payment.ID,
	}

	release, err := r.locker.Acquire(ctx, lockKey(payment.MerchantOrderID), r.lockTTL)
	if err != nil {
		return out, fmt.Errorf("acquire reconcile lock: %w", err)
	}
	defer release()

	existing, err := r.writer.Find(ctx, payment.ID)
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrRecordWrite, err)
	}
	if existing != nil {
		r.metrics.Duplicate()
		r.log.WithFields(fields).WithField("booking_number", existing.BookingNumber).Debug("booking record already exists")
		out.Booking = existing
		out.Duplicate = true
		out.Provider, out.Classification = storedResult(existing)
		return out, nil
	}

	// Another process may have cached an operator result since we loaded it.
	if err := r.db.WithContext(ctx).First(payment, payment.ID).Error; err != nil {
		return out, fmt.Errorf("reload payment: %w", err)
	}

	req, err := r.parser.Parse(payment.BookingData)
	if err != nil {
		r.log.WithFields(fields).WithError(err).Warn("booking data rejected")
		r.saveReconcileError(ctx, payment, err)
		return out, err
	}
	if req.PaymentReference == "" {
		req.PaymentReference = payment.MerchantOrderID
	}
	if req.TotalAmount.IsZero() {
		req.TotalAmount = payment.Amount
	}

	// Payment is captured: the operator call and the write must finish even
	// if the client goes away.
	workCtx := context.WithoutCancel(ctx)

	var result *ProviderBookingResult
	if req.Ferry != nil {
		result = cachedResult(payment)
		if result == nil {
			result = r.booker.BookFerry(workCtx, req)
			r.cacheResult(workCtx, payment, result)
		} else {
			r.log.WithFields(fields).Info("reusing cached operator result")
		}
	}

	var cls *Classification
	if result != nil && !result.Success {
		c := ClassifyResult(result, req.Type)
		cls = &c
		r.metrics.Classification(string(c.ErrorType))
		r.log.WithFields(fields).WithFields(logrus.Fields{
			"error_type":      c.ErrorType,
			"requires_refund": c.RequiresRefund,
			"provider_error":  result.Error,
		}).Warn("ferry booking failed after payment")
	}

	rec, created, err := r.writer.Write(workCtx, req, payment, result, cls)
	if err != nil {
		return out, err
	}

	out.Booking = rec
	out.Provider = result
	out.Classification = cls
	out.Duplicate = !created
	if created {
		if payment.ReconcileError != "" {
			r.saveReconcileError(workCtx, payment, nil)
		}
		r.announce(workCtx, payment, rec, cls)
	}
	return out, nil
}

// RetryProvider re-attempts the operator booking for a record whose ferry
// item failed.
func (r *Reconciler) RetryProvider(ctx context.Context, bookingID uint) (*Outcome, error) {
	rec, err := r.loadBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	release, err := r.locker.Acquire(ctx, lockKey(rec.MerchantOrderID), r.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire reconcile lock: %w", err)
	}
	defer release()

	// Reload under the lock so two retries cannot both book.
	if rec, err = r.loadBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	item := rec.FerryItem()
	if item == nil || item.ProviderBooking.BookingStatus != models.ProviderBookingFailed {
		return nil, ErrNothingToRetry
	}

	var payment models.PaymentRecord
	if err := r.db.WithContext(ctx).First(&payment, rec.PaymentID).Error; err != nil {
		return nil, fmt.Errorf("load payment for booking %d: %w", bookingID, err)
	}
	req, err := r.parser.Parse(payment.BookingData)
	if err != nil {
		return nil, err
	}

	workCtx := context.WithoutCancel(ctx)
	result := r.booker.BookFerry(workCtx, req)
	r.cacheResult(workCtx, &payment, result)

	var cls *Classification
	if !result.Success {
		c := ClassifyResult(result, rec.BookingType)
		cls = &c
		r.metrics.Classification(string(c.ErrorType))
	}
	if err := r.writer.ApplyRetry(workCtx, rec, result, cls); err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{
		"booking_number": rec.BookingNumber,
		"success":        result.Success,
	}).Info("ferry booking retried")

	if result.Success {
		r.announce(workCtx, &payment, rec, nil)
	}
	return &Outcome{
		Payment:        &payment,
		State:          gateway.StateCompleted,
		TransactionID:  payment.GatewayTransactionID,
		Booking:        rec,
		Provider:       result,
		Classification: cls,
	}, nil
}

// MarkRefunded cancels the booking and records the refund. A refund already
// recorded under the same gateway refund id is ignored.
func (r *Reconciler) MarkRefunded(ctx context.Context, rec *models.BookingRecord, refund *models.Refund) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if refund.GatewayRefundID != "" {
			var count int64
			if err := tx.Model(&models.Refund{}).Where("gateway_refund_id = ?", refund.GatewayRefundID).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return nil
			}
		}

		if err := tx.Model(rec).Updates(map[string]interface{}{
			"status":         models.BookingStatusCancelled,
			"payment_status": models.BookingPaymentRefunded,
		}).Error; err != nil {
			return err
		}

		refund.BookingID = rec.ID
		refund.PaymentID = rec.PaymentID
		if refund.RefundDate.IsZero() {
			refund.RefundDate = time.Now()
		}
		return tx.Create(refund).Error
	})
	if err != nil {
		return fmt.Errorf("mark booking %d refunded: %w", rec.ID, err)
	}

	rec.Status = models.BookingStatusCancelled
	rec.PaymentStatus = models.BookingPaymentRefunded
	r.log.WithFields(logrus.Fields{
		"booking_number": rec.BookingNumber,
		"amount":         refund.Amount.String(),
	}).Info("booking refunded")
	return nil
}

func (r *Reconciler) loadBooking(ctx context.Context, id uint) (*models.BookingRecord, error) {
	var rec models.BookingRecord
	err := r.db.WithContext(ctx).Preload("Items").Preload("Passengers").First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// recordStatus stores what the gateway said. A captured payment is never
// moved back to pending or failed.
func (r *Reconciler) recordStatus(ctx context.Context, payment *models.PaymentRecord, status *gateway.Status) {
	now := time.Now()
	updates := map[string]interface{}{"last_checked_at": now}
	if status.TransactionID != "" && status.TransactionID != payment.GatewayTransactionID {
		updates["gateway_transaction_id"] = status.TransactionID
	}

	next := status.State.PaymentStatus()
	if payment.CanTransitionTo(next) {
		updates["status"] = next
		r.log.WithFields(logrus.Fields{
			"merchant_order_id": payment.MerchantOrderID,
			"from":              payment.Status,
			"to":                next,
			"raw_state":         status.RawState,
		}).Info("payment status changed")
	}

	if err := r.db.WithContext(ctx).Model(payment).Updates(updates).Error; err != nil {
		r.log.WithField("merchant_order_id", payment.MerchantOrderID).WithError(err).Error("failed to store payment status")
		return
	}
	payment.LastCheckedAt = &now
	if v, ok := updates["gateway_transaction_id"]; ok {
		payment.GatewayTransactionID = v.(string)
	}
	if _, ok := updates["status"]; ok {
		payment.Status = next
	}
}

func (r *Reconciler) saveReconcileError(ctx context.Context, payment *models.PaymentRecord, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := r.db.WithContext(ctx).Model(payment).Update("reconcile_error", msg).Error; err != nil {
		r.log.WithField("merchant_order_id", payment.MerchantOrderID).WithError(err).Error("failed to store reconcile error")
		return
	}
	payment.ReconcileError = msg
}

func cachedResult(payment *models.PaymentRecord) *ProviderBookingResult {
	if len(payment.ProviderResult) == 0 {
		return nil
	}
	var result ProviderBookingResult
	if err := json.Unmarshal(payment.ProviderResult, &result); err != nil {
		return nil
	}
	return &result
}

// cacheResult stores the operator's answer before the record is written so a
// crash in between never leads to a second booking with the operator.
func (r *Reconciler) cacheResult(ctx context.Context, payment *models.PaymentRecord, result *ProviderBookingResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := r.db.WithContext(ctx).Model(payment).Update("provider_result", datatypes.JSON(data)).Error; err != nil {
		r.log.WithField("merchant_order_id", payment.MerchantOrderID).WithError(err).Error("failed to cache operator result")
		return
	}
	payment.ProviderResult = data
}

// storedResult rebuilds the operator result and classification from a
// persisted record.
func storedResult(rec *models.BookingRecord) (*ProviderBookingResult, *Classification) {
	item := rec.FerryItem()
	if item == nil {
		return nil, nil
	}
	pb := item.ProviderBooking
	result := &ProviderBookingResult{
		Success:           pb.BookingStatus == models.ProviderBookingConfirmed,
		ProviderBookingID: pb.ProviderBookingID,
		PNR:               pb.PNR,
		RawResponse:       json.RawMessage(pb.RawResponse),
		Error:             pb.ErrorMessage,
	}
	if result.Success {
		return result, nil
	}
	cls := ClassificationFor(ErrorType(pb.ErrorType), rec.BookingType)
	cls.RequiresRefund = pb.RequiresRefund
	return result, &cls
}

// announce publishes the outcome event and notifies the customer. Failures
// are logged only; the booking is already stored.
func (r *Reconciler) announce(ctx context.Context, payment *models.PaymentRecord, rec *models.BookingRecord, cls *Classification) {
	event := events.BookingEvent{
		MerchantOrderID: payment.MerchantOrderID,
		BookingNumber:   rec.BookingNumber,
		BookingType:     string(rec.BookingType),
		Status:          string(rec.Status),
		PaymentStatus:   string(rec.PaymentStatus),
		Amount:          rec.Total.StringFixed(2),
		Currency:        rec.Currency,
		OccurredAt:      time.Now(),
	}
	if item := rec.FerryItem(); item != nil {
		event.Operator = item.Operator
		event.PNR = item.ProviderBooking.PNR
		event.ErrorType = item.ProviderBooking.ErrorType
		event.RequiresRefund = item.ProviderBooking.RequiresRefund
	}

	fields := logrus.Fields{"booking_number": rec.BookingNumber}
	if err := r.publisher.PublishBookingOutcome(ctx, event); err != nil {
		r.log.WithFields(fields).WithError(err).Error("failed to publish booking event")
	}
	if r.notifier != nil {
		if err := r.notifier.BookingCreated(ctx, rec, cls); err != nil {
			r.log.WithFields(fields).WithError(err).Error("failed to schedule booking notification")
		}
	}
}
