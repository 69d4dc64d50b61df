package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/kafka"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/logger"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/models"
)

func quietLogger() *logger.Logger { return logger.NewWithWriter(io.Discard) }

func TestSettlementConsumerHandler(t *testing.T) {
	req := &models.SettlementRequest{StudioSlug: "zen-pilates", PaymentIntentID: "pi_1", PaymentID: "pay-1"}
	body, err := json.Marshal(req)
	require.NoError(t, err)

	var got []*models.SettlementRequest
	handler := &kafka.SettlementConsumerHandler{
		Handler: func(_ context.Context, r *models.SettlementRequest) error {
			got = append(got, r)
			return nil
		},
		Log: quietLogger(),
	}

	msgChan := make(chan *sarama.ConsumerMessage, 2)
	good := &sarama.ConsumerMessage{Topic: kafka.TopicSettlementRequests, Offset: 0, Value: body}
	bad := &sarama.ConsumerMessage{Topic: kafka.TopicSettlementRequests, Offset: 1, Value: []byte("{not json")}
	msgChan <- good
	msgChan <- bad
	close(msgChan)

	mockSession := &MockConsumerGroupSession{}
	mockSession.On("Context").Return(context.Background())
	mockSession.On("MarkMessage", good, "").Return()
	mockSession.On("MarkMessage", bad, "").Return()
	mockClaim := &MockConsumerGroupClaim{}
	mockClaim.On("Messages").Return(msgChan)

	require.NoError(t, handler.ConsumeClaim(mockSession, mockClaim))

	require.Len(t, got, 1)
	assert.Equal(t, "pay-1", got[0].PaymentID)
	assert.Equal(t, "zen-pilates", got[0].StudioSlug)
	mockSession.AssertExpectations(t)
	mockClaim.AssertExpectations(t)
}

func TestSettlementConsumerHandler_RetriesTransientFailures(t *testing.T) {
	body, _ := json.Marshal(&models.SettlementRequest{PaymentID: "pay-1"})

	calls := 0
	handler := &kafka.SettlementConsumerHandler{
		Handler: func(context.Context, *models.SettlementRequest) error {
			calls++
			if calls < 2 {
				return errors.New("gateway unavailable")
			}
			return nil
		},
		Log:     quietLogger(),
		Backoff: time.Millisecond,
	}

	msgChan := make(chan *sarama.ConsumerMessage, 1)
	msg := &sarama.ConsumerMessage{Value: body}
	msgChan <- msg
	close(msgChan)

	mockSession := &MockConsumerGroupSession{}
	mockSession.On("Context").Return(context.Background())
	mockSession.On("MarkMessage", msg, "").Return()
	mockClaim := &MockConsumerGroupClaim{}
	mockClaim.On("Messages").Return(msgChan)

	require.NoError(t, handler.ConsumeClaim(mockSession, mockClaim))
	assert.Equal(t, 2, calls)
	mockSession.AssertNumberOfCalls(t, "MarkMessage", 1)
}

func TestSettlementConsumerHandler_GivesUpAndCommits(t *testing.T) {
	body, _ := json.Marshal(&models.SettlementRequest{PaymentID: "pay-1"})

	calls := 0
	handler := &kafka.SettlementConsumerHandler{
		Handler: func(context.Context, *models.SettlementRequest) error {
			calls++
			return errors.New("ledger down")
		},
		Log:     quietLogger(),
		Backoff: time.Millisecond,
	}

	msgChan := make(chan *sarama.ConsumerMessage, 1)
	msg := &sarama.ConsumerMessage{Value: body}
	msgChan <- msg
	close(msgChan)

	mockSession := &MockConsumerGroupSession{}
	mockSession.On("Context").Return(context.Background())
	mockSession.On("MarkMessage", msg, "").Return()
	mockClaim := &MockConsumerGroupClaim{}
	mockClaim.On("Messages").Return(msgChan)

	require.NoError(t, handler.ConsumeClaim(mockSession, mockClaim))
	assert.Equal(t, 3, calls)
	mockSession.AssertExpectations(t)
}

func TestProducerRoutesEventsByType(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var event models.BookingEvent
		if err := json.Unmarshal(val, &event); err != nil {
			return err
		}
		if event.PaymentID != "pay-1" {
			return errors.New("unexpected payment id " + event.PaymentID)
		}
		return nil
	})

	p := kafka.NewProducerFromSync(sp, quietLogger())
	require.NoError(t, p.PublishBookingEvent(&models.BookingEvent{Type: models.EventPaymentRefunded, PaymentID: "pay-1"}))
	require.NoError(t, p.Close())

	assert.Equal(t, kafka.TopicPaymentRefunded, kafka.TopicForEvent(models.EventPaymentRefunded))
	assert.Equal(t, kafka.TopicPaymentRefundFailed, kafka.TopicForEvent(models.EventPaymentRefundFailed))
	assert.Equal(t, kafka.TopicBookingConfirmed, kafka.TopicForEvent(models.EventBookingConfirmed))
	assert.Equal(t, kafka.TopicBookingEvents, kafka.TopicForEvent("something.else"))
}

func TestProducerSendFailure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := kafka.NewProducerFromSync(sp, quietLogger())
	err := p.DispatchSettlement(context.Background(), &models.SettlementRequest{PaymentID: "pay-1"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestMockProducerSettlesInProcess(t *testing.T) {
	p, err := kafka.NewProducer(nil, true, quietLogger())
	require.NoError(t, err)

	var settled string
	p.WithLocalSettlement(func(_ context.Context, req *models.SettlementRequest) error {
		settled = req.PaymentID
		return nil
	})

	require.NoError(t, p.DispatchSettlement(context.Background(), &models.SettlementRequest{PaymentID: "pay-9"}))
	assert.Equal(t, "pay-9", settled)
	assert.NoError(t, p.PublishBookingEvent(&models.BookingEvent{Type: models.EventBookingConfirmed, PaymentID: "pay-9"}))
}

// TestSettlementConsumerIntegration round-trips a request through a real broker.
func TestSettlementConsumerIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	brokers := os.Getenv("KAFKA_BROKERS")
	if brokers == "" {
		brokers = "localhost:29092"
	}

	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Net.DialTimeout = 5 * time.Second
	sp, err := sarama.NewSyncProducer([]string{brokers}, config)
	if err != nil {
		t.Skip("Skipping test because Kafka is not available:", err)
		return
	}
	producer := kafka.NewProducerFromSync(sp, quietLogger())
	defer producer.Close()

	consumer, err := kafka.NewSettlementConsumer([]string{brokers}, "test-settlement-"+time.Now().Format("20060102150405"), quietLogger())
	require.NoError(t, err)
	defer consumer.Close()

	paymentID := "pay-it-" + time.Now().Format("150405.000000")
	received := make(chan struct{})
	var once sync.Once

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = consumer.ConsumeSettlements(ctx, func(_ context.Context, req *models.SettlementRequest) error {
			if req.PaymentID == paymentID {
				once.Do(func() { close(received) })
			}
			return nil
		})
	}()

	require.NoError(t, producer.DispatchSettlement(ctx, &models.SettlementRequest{StudioSlug: "zen-pilates", PaymentID: paymentID}))

	select {
	case <-received:
	case <-time.After(20 * time.Second):
		t.Fatalf("Timeout waiting for settlement request %s", paymentID)
	}
}

// Mock implementations for Sarama interfaces
type MockConsumerGroupSession struct {
	mock.Mock
}

func (m *MockConsumerGroupSession) Claims() map[string][]int32 {
	args := m.Called()
	return args.Get(0).(map[string][]int32)
}

func (m *MockConsumerGroupSession) MemberID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConsumerGroupSession) GenerationID() int32 {
	args := m.Called()
	return int32(args.Int(0))
}

func (m *MockConsumerGroupSession) MarkOffset(topic string, partition int32, offset int64, metadata string) {
	m.Called(topic, partition, offset, metadata)
}

func (m *MockConsumerGroupSession) Commit() {
	m.Called()
}

func (m *MockConsumerGroupSession) ResetOffset(topic string, partition int32, offset int64, metadata string) {
	m.Called(topic, partition, offset, metadata)
}

func (m *MockConsumerGroupSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	m.Called(msg, metadata)
}

func (m *MockConsumerGroupSession) Context() context.Context {
	args := m.Called()
	return args.Get(0).(context.Context)
}

type MockConsumerGroupClaim struct {
	mock.Mock
}

func (m *MockConsumerGroupClaim) Topic() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConsumerGroupClaim) Partition() int32 {
	args := m.Called()
	return int32(args.Int(0))
}

func (m *MockConsumerGroupClaim) InitialOffset() int64 {
	args := m.Called()
	return int64(args.Int(0))
}

func (m *MockConsumerGroupClaim) HighWaterMarkOffset() int64 {
	args := m.Called()
	return int64(args.Int(0))
}

func (m *MockConsumerGroupClaim) Messages() <-chan *sarama.ConsumerMessage {
	args := m.Called()
	return args.Get(0).(chan *sarama.ConsumerMessage)
}
