package tasks

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/models"
)

const (
	confirmedTemplate = "Hi $name, your booking $booking_number is confirmed.\n" +
		"PNR: $pnr\nRoute: $route\nTravel date: $travel_date\nAmount paid: $amount"
	pendingTemplate = "Hi $name, we received your payment for booking $booking_number.\n$message"
)

// BookingNotifier queues a send_notification task for every new booking
// record. Delivery happens in the worker.
type BookingNotifier struct {
	db *gorm.DB
}

func NewBookingNotifier(db *gorm.DB) *BookingNotifier {
	return &BookingNotifier{db: db}
}

func (n *BookingNotifier) BookingCreated(ctx context.Context, rec *models.BookingRecord, cls *booking.Classification) error {
	args := NotificationArgsFor(rec, cls)
	if len(args.Recipients) == 0 {
		return nil
	}
	task, err := SendNotificationTask.CreateTask(args)
	if err != nil {
		return err
	}
	if err := n.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("failed to queue notification: %w", err)
	}
	return nil
}

// NotificationArgsFor builds the notification for rec. A pending booking gets
// the classified user message instead of the ticket details.
func NotificationArgsFor(rec *models.BookingRecord, cls *booking.Classification) SendNotificationArgs {
	var channels []string
	if rec.EmailUpdates && rec.CustomerEmail != "" {
		channels = append(channels, ChannelEmail)
	}
	if rec.WhatsAppUpdates && rec.CustomerPhone != "" {
		channels = append(channels, ChannelWhatsApp)
	}

	args := SendNotificationArgs{
		BookingNumber: rec.BookingNumber,
		BookingStatus: string(rec.Status),
		Reference:     rec.MerchantOrderID,
		Amount:        fmt.Sprintf("%s %s", rec.Currency, rec.Total.StringFixed(2)),
	}
	if len(channels) > 0 {
		args.Recipients = []NotificationRecipient{{
			Name:     rec.CustomerName,
			Email:    rec.CustomerEmail,
			Phone:    rec.CustomerPhone,
			Channels: channels,
		}}
	}

	if item := rec.FerryItem(); item != nil {
		args.PNR = item.ProviderBooking.PNR
		args.Route = item.FromLocation + " to " + item.ToLocation
		if !item.TravelDate.IsZero() {
			args.TravelDate = item.TravelDate.Format("02 Jan 2006")
		}
	}

	if rec.Status == models.BookingStatusConfirmed {
		args.Subject = "Booking " + rec.BookingNumber + " confirmed"
		args.NotifTemplate = confirmedTemplate
		return args
	}

	args.Subject = "Booking " + rec.BookingNumber + " needs attention"
	args.NotifTemplate = pendingTemplate
	if cls != nil {
		args.Message = cls.Render(rec.BookingNumber, rec.MerchantOrderID)
	}
	return args
}
