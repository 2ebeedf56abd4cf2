package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"andaman_booking_echo/internal/booking"
	"andaman_booking_echo/internal/models"
)

type sentMessage struct {
	to      string
	subject string
	body    string
}

type fakeEmail struct {
	sent []sentMessage
	err  error
}

func (f *fakeEmail) SendEmail(to []string, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: to[0], subject: subject, body: body})
	return nil
}

type fakeWhatsApp struct {
	sent []sentMessage
	err  error
}

func (f *fakeWhatsApp) SendMessage(_ context.Context, chatID, text string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: chatID, body: text})
	return nil
}

func notificationTask(t *testing.T, args SendNotificationArgs) models.ScheduledTask {
	t.Helper()
	task, err := SendNotificationTask.CreateTask(args)
	require.NoError(t, err)
	return *task
}

func TestSendNotificationDeliversOnEveryChannel(t *testing.T) {
	env, _ := newEnv(t)
	email, wa := &fakeEmail{}, &fakeWhatsApp{}
	env.Email, env.WhatsApp = email, wa

	task := notificationTask(t, SendNotificationArgs{
		Recipients: []NotificationRecipient{
			{Name: "Asha", Email: "asha@example.com", Phone: "9876543210", Channels: []string{ChannelEmail, ChannelWhatsApp}},
			{Name: "NoPhone", Email: "np@example.com", Channels: []string{ChannelWhatsApp}},
		},
		NotifTemplate: "Hi $name, booking $booking_number PNR $pnr",
		Subject:       "Booking AE-1 confirmed",
		BookingNumber: "AE-1",
		PNR:           "GO9001",
	})

	result, err := SendNotificationTask.HandleExecution(context.Background(), env, task)
	require.NoError(t, err)
	assert.Equal(t, 2, result["success"])
	assert.Equal(t, 1, result["skipped"])
	assert.Equal(t, 0, result["failure"])

	require.Len(t, email.sent, 1)
	assert.Equal(t, "Hi Asha, booking AE-1 PNR GO9001", email.sent[0].body)
	assert.Equal(t, "Booking AE-1 confirmed", email.sent[0].subject)
	require.Len(t, wa.sent, 1)
	assert.Equal(t, "9876543210", wa.sent[0].to)
}

func TestSendNotificationReschedulesFailedChannels(t *testing.T) {
	env, db := newEnv(t)
	env.Email = &fakeEmail{}
	env.WhatsApp = &fakeWhatsApp{err: errors.New("waha down")}

	task := notificationTask(t, SendNotificationArgs{
		Recipients: []NotificationRecipient{
			{Name: "Asha", Email: "asha@example.com", Phone: "9876543210", Channels: []string{ChannelEmail, ChannelWhatsApp}},
		},
		NotifTemplate: "Hi $name",
	})

	result, err := SendNotificationTask.HandleExecution(context.Background(), env, task)
	require.NoError(t, err)
	assert.Equal(t, 1, result["failure"])

	var retry models.ScheduledTask
	require.NoError(t, db.Where("task_name = ?", SendNotificationTask.TaskID()).First(&retry).Error)
	assert.True(t, retry.Due.After(time.Now()))

	var args SendNotificationArgs
	require.NoError(t, decodeArgs(retry, &args))
	assert.Equal(t, 1, args.AttemptCount)
	require.Len(t, args.Recipients, 1)
	assert.Equal(t, []string{ChannelWhatsApp}, args.Recipients[0].Channels)
}

func TestSendNotificationGivesUpAtMaxAttempts(t *testing.T) {
	env, db := newEnv(t)
	env.Email = &fakeEmail{err: errors.New("smtp refused")}

	task := notificationTask(t, SendNotificationArgs{
		Recipients:    []NotificationRecipient{{Name: "Asha", Email: "asha@example.com", Channels: []string{ChannelEmail}}},
		NotifTemplate: "Hi",
		AttemptCount:  3,
	})

	_, err := SendNotificationTask.HandleExecution(context.Background(), env, task)
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.ScheduledTask{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSendNotificationRequiresTemplate(t *testing.T) {
	env, _ := newEnv(t)
	_, err := SendNotificationTask.HandleExecution(context.Background(), env, notificationTask(t, SendNotificationArgs{}))
	assert.Error(t, err)
}

func bookingRecord(status models.BookingStatus) *models.BookingRecord {
	return &models.BookingRecord{
		BookingNumber:   "AE-1A2B3C4D",
		BookingType:     models.BookingTypeFerry,
		Status:          status,
		PaymentStatus:   models.BookingPaymentPaid,
		MerchantOrderID: "AE_1001",
		CustomerName:    "Asha Rao",
		CustomerEmail:   "asha@example.com",
		CustomerPhone:   "9876543210",
		Total:           decimal.NewFromInt(3000),
		Currency:        "INR",
		EmailUpdates:    true,
		WhatsAppUpdates: true,
		Items: []models.BookingItem{{
			ItemType:     models.BookingTypeFerry,
			FromLocation: "Port Blair",
			ToLocation:   "Havelock",
			TravelDate:   time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC),
			ProviderBooking: models.ProviderBooking{
				PNR: "GO9001",
			},
		}},
	}
}

func TestNotificationArgsForConfirmedBooking(t *testing.T) {
	args := NotificationArgsFor(bookingRecord(models.BookingStatusConfirmed), nil)
	assert.Equal(t, confirmedTemplate, args.NotifTemplate)
	assert.Equal(t, "GO9001", args.PNR)
	assert.Equal(t, "Port Blair to Havelock", args.Route)
	assert.Equal(t, "20 Nov 2026", args.TravelDate)
	assert.Equal(t, "INR 3000.00", args.Amount)
	require.Len(t, args.Recipients, 1)
	assert.Equal(t, []string{ChannelEmail, ChannelWhatsApp}, args.Recipients[0].Channels)
}

func TestNotificationArgsForPendingBooking(t *testing.T) {
	rec := bookingRecord(models.BookingStatusPending)
	rec.WhatsAppUpdates = false
	cls := booking.Classify("Seat A1 already booked", models.BookingTypeFerry)

	args := NotificationArgsFor(rec, &cls)
	assert.Equal(t, pendingTemplate, args.NotifTemplate)
	assert.Contains(t, args.Message, "AE-1A2B3C4D")
	assert.Equal(t, []string{ChannelEmail}, args.Recipients[0].Channels)
}

func TestBookingNotifierQueuesTask(t *testing.T) {
	env, db := newEnv(t)
	n := NewBookingNotifier(db)

	require.NoError(t, n.BookingCreated(context.Background(), bookingRecord(models.BookingStatusConfirmed), nil))

	var task models.ScheduledTask
	require.NoError(t, db.First(&task).Error)
	assert.Equal(t, SendNotificationTask.TaskID(), task.TaskName)
	assert.Equal(t, models.ScheduledTaskStatusActive, task.Status)

	// the queued task runs through the worker path
	email, wa := &fakeEmail{}, &fakeWhatsApp{}
	env.Email, env.WhatsApp = email, wa
	registry := NewRegistry()
	DefineTasks(registry)
	NewRunner(registry, env).Execute(context.Background(), task)
	require.Len(t, email.sent, 1)
	assert.Contains(t, email.sent[0].body, "GO9001")
	assert.Len(t, wa.sent, 1)
}

func TestBookingNotifierSkipsWithoutChannels(t *testing.T) {
	_, db := newEnv(t)
	rec := bookingRecord(models.BookingStatusConfirmed)
	rec.EmailUpdates, rec.WhatsAppUpdates = false, false

	require.NoError(t, NewBookingNotifier(db).BookingCreated(context.Background(), rec, nil))
	var count int64
	require.NoError(t, db.Model(&models.ScheduledTask{}).Count(&count).Error)
	assert.Zero(t, count)
}
