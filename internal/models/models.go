package models

// All lists every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&PaymentRecord{},
		&PaymentCallbackHistory{},
		&BookingRecord{},
		&BookingItem{},
		&Passenger{},
		&Refund{},
		&ScheduledTask{},
		&ScheduledTaskHistory{},
	}
}
