package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/logger"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
)

const (
	TopicPaymentSucceeded    = "payment-succeeded"
	TopicPaymentRefunded     = "payment-refunded"
	TopicPaymentRefundFailed = "payment-refund-failed"
	TopicBookingConfirmed    = "booking-confirmed"
	TopicPlanUpserted        = "plan-upserted"
	TopicBookingEvents       = "booking-events"
	TopicSettlementRequests  = "settlement-requests"
)

// SettlementFunc settles a payment in-process. It backs DispatchSettlement in
// mock mode so webhooks still confirm bookings without a broker.
type SettlementFunc func(ctx context.Context, req *models.SettlementRequest) error

type Producer struct {
	producer sarama.SyncProducer
	mockMode bool
	local    SettlementFunc
	log      *logger.Logger
}

func NewProducer(brokers []string, mockMode bool, log *logger.Logger) (*Producer, error) {
	if mockMode {
		log.LogKafka("MOCK_MODE", "producer", "Running in mock mode - no actual Kafka connection")
		return &Producer{mockMode: true, log: log}, nil
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	config.Version = sarama.V2_8_0_0

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	log.LogKafka("CONNECTED", "producer", fmt.Sprintf("Connected to Kafka brokers: %v", brokers))
	return NewProducerFromSync(producer, log), nil
}

// NewProducerFromSync wraps an existing sarama producer, e.g. a mocks.SyncProducer.
func NewProducerFromSync(producer sarama.SyncProducer, log *logger.Logger) *Producer {
	return &Producer{producer: producer, log: log}
}

// WithLocalSettlement sets the in-process fallback used in mock mode.
func (p *Producer) WithLocalSettlement(fn SettlementFunc) *Producer {
	p.local = fn
	return p
}

func (p *Producer) PublishBookingEvent(event *models.BookingEvent) error {
	return p.send(TopicForEvent(event.Type), event.PaymentID, event)
}

// DispatchSettlement queues a webhook-driven settlement. Messages are keyed by
// payment id so redeliveries of one payment stay ordered on one partition.
func (p *Producer) DispatchSettlement(ctx context.Context, req *models.SettlementRequest) error {
	if p.mockMode {
		if p.local == nil {
			p.log.Warn("KAFKA", fmt.Sprintf("Mock mode without local settlement, dropping request for payment %s", req.PaymentID))
			return nil
		}
		p.log.LogKafka("MOCK_DISPATCH", TopicSettlementRequests, fmt.Sprintf("Settling payment %s in-process", req.PaymentID))
		return p.local(ctx, req)
	}
	return p.send(TopicSettlementRequests, req.PaymentID, req)
}

func (p *Producer) send(topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if p.mockMode {
		p.log.LogKafka("MOCK_PUBLISH", topic, fmt.Sprintf("Mock publishing message for payment: %s", key))
		p.log.Debug("KAFKA", string(data))
		return nil
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.log.Error("KAFKA", fmt.Sprintf("Failed to send message to topic %s: %v", topic, err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	p.log.LogKafka("PUBLISHED", topic, fmt.Sprintf("Message sent to partition %d at offset %d for payment %s", partition, offset, key))
	return nil
}

func TopicForEvent(eventType string) string {
	switch eventType {
	case models.EventPaymentSucceeded:
		return TopicPaymentSucceeded
	case models.EventPaymentRefunded:
		return TopicPaymentRefunded
	case models.EventPaymentRefundFailed:
		return TopicPaymentRefundFailed
	case models.EventBookingConfirmed:
		return TopicBookingConfirmed
	case models.EventPlanUpserted:
		return TopicPlanUpserted
	default:
		return TopicBookingEvents
	}
}

func (p *Producer) Close() error {
	if p.mockMode {
		p.log.LogKafka("MOCK_CLOSE", "producer", "Mock producer closed")
		return nil
	}

	if p.producer != nil {
		p.log.LogKafka("CLOSING", "producer", "Closing Kafka producer connection")
		return p.producer.Close()
	}
	return nil
}
