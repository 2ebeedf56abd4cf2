package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/sirupsen/logrus"
)

const EventBookingOutcome = "booking.outcome"

// BookingEvent is published once per booking record, when it is first written.
type BookingEvent struct {
	MerchantOrderID string    `json:"merchant_order_id"`
	BookingNumber   string    `json:"booking_number"`
	BookingType     string    `json:"booking_type"`
	Status          string    `json:"status"`
	PaymentStatus   string    `json:"payment_status"`
	Operator        string    `json:"operator,omitempty"`
	PNR             string    `json:"pnr,omitempty"`
	ErrorType       string    `json:"error_type,omitempty"`
	RequiresRefund  bool      `json:"requires_refund"`
	Amount          string    `json:"amount"`
	Currency        string    `json:"currency"`
	OccurredAt      time.Time `json:"occurred_at"`
}

type Publisher interface {
	PublishBookingOutcome(ctx context.Context, event BookingEvent) error
	Close() error
}

// NewSaramaConfig returns a producer config suitable for a SyncProducer.
func NewSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_3_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Retry.Max = 3
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	return cfg
}

type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *logrus.Logger
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, log *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, log: log}
}

// DialKafka connects a SyncProducer to brokers and wraps it.
func DialKafka(brokers []string, topic string, log *logrus.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaPublisher(producer, topic, log), nil
}

func (p *KafkaPublisher) PublishBookingOutcome(ctx context.Context, event BookingEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal booking event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.MerchantOrderID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(EventBookingOutcome)},
		},
		Timestamp: event.OccurredAt,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish booking event: %w", err)
	}

	p.log.WithFields(logrus.Fields{
		"topic":             p.topic,
		"partition":         partition,
		"offset":            offset,
		"merchant_order_id": event.MerchantOrderID,
		"status":            event.Status,
	}).Debug("published booking event")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher drops events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishBookingOutcome(context.Context, BookingEvent) error { return nil }
func (NopPublisher) Close() error                                              { return nil }
