package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/logger"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
)

const (
	settlementAttempts = 3
	settlementBackoff  = 500 * time.Millisecond
)

type Consumer struct {
	consumer sarama.ConsumerGroup
	topics   []string
	log      *logger.Logger
}

func NewSettlementConsumer(brokers []string, groupID string, log *logger.Logger) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Version = sarama.V2_8_0_0

	consumer, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.LogKafka("CONNECTED", "consumer", fmt.Sprintf("Joined group %s on brokers %v", groupID, brokers))
	return &Consumer{
		consumer: consumer,
		topics:   []string{TopicSettlementRequests},
		log:      log,
	}, nil
}

// ConsumeSettlements blocks until ctx is cancelled, handing each settlement
// request to handler.
func (c *Consumer) ConsumeSettlements(ctx context.Context, handler SettlementFunc) error {
	consumerHandler := &SettlementConsumerHandler{Handler: handler, Log: c.log}

	for {
		if err := c.consumer.Consume(ctx, c.topics, consumerHandler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.log.Error("KAFKA", fmt.Sprintf("Error consuming messages: %v", err))
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.consumer.Close()
}

// SettlementConsumerHandler is exported for testing purposes.
type SettlementConsumerHandler struct {
	Handler SettlementFunc
	Log     *logger.Logger
	// Backoff between attempts; zero uses the default.
	Backoff time.Duration
}

func (h *SettlementConsumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *SettlementConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim settles each request. Transient failures are retried a few
// times; the offset is then committed regardless because a client confirm
// call or a later webhook retry can still settle the payment.
func (h *SettlementConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		var req models.SettlementRequest
		if err := json.Unmarshal(message.Value, &req); err != nil {
			h.Log.Error("KAFKA", fmt.Sprintf("Failed to unmarshal settlement request at offset %d: %v", message.Offset, err))
			session.MarkMessage(message, "")
			continue
		}

		h.handle(session.Context(), &req)
		session.MarkMessage(message, "")
	}
	return nil
}

func (h *SettlementConsumerHandler) handle(ctx context.Context, req *models.SettlementRequest) {
	backoff := h.Backoff
	if backoff == 0 {
		backoff = settlementBackoff
	}

	var err error
	for attempt := 1; attempt <= settlementAttempts; attempt++ {
		if err = h.Handler(ctx, req); err == nil {
			h.Log.LogKafka("SETTLED", TopicSettlementRequests, fmt.Sprintf("Payment %s processed", req.PaymentID))
			return
		}
		h.Log.Warn("KAFKA", fmt.Sprintf("Settlement of payment %s failed (attempt %d/%d): %v", req.PaymentID, attempt, settlementAttempts, err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
	h.Log.Error("KAFKA", fmt.Sprintf("Giving up on settlement of payment %s: %v", req.PaymentID, err))
}
