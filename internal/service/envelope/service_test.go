package envelope

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"akistel-relay/internal/domain"
	apperrors "akistel-relay/pkg/errors"
)

// Mocks
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, envelope *domain.Envelope) error {
	args := m.Called(ctx, envelope)
	if args.Error(0) == nil {
		envelope.EnvelopeID = uuid.New()
		envelope.CreatedAt = time.Now().UTC()
	}
	return args.Error(0)
}

func (m *MockRepository) Inbox(ctx context.Context, recipientID uuid.UUID, limit int) ([]*domain.InboxEntry, error) {
	args := m.Called(ctx, recipientID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.InboxEntry), args.Error(1)
}

func (m *MockRepository) Ack(ctx context.Context, envelopeIDs []uuid.UUID) (int64, error) {
	args := m.Called(ctx, envelopeIDs)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) DeleteExpiredBatch(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	args := m.Called(ctx, cutoff, limit)
	return args.Get(0).(int64), args.Error(1)
}

type MockDeviceGetter struct {
	mock.Mock
}

func (m *MockDeviceGetter) GetByID(ctx context.Context, deviceID uuid.UUID) (*domain.Device, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Device), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Push(deviceID uuid.UUID, payload interface{}) bool {
	args := m.Called(deviceID, payload)
	return args.Bool(0)
}

type MockOfflinePusher struct {
	mock.Mock
}

func (m *MockOfflinePusher) NotifyNewEnvelope(ctx context.Context, recipientID uuid.UUID, envelopeID uuid.UUID, senderID uuid.UUID, createdAt time.Time) bool {
	args := m.Called(ctx, recipientID, envelopeID, senderID, createdAt)
	return args.Bool(0)
}

func sendInput(senderID, recipientID uuid.UUID) *SendInput {
	return &SendInput{
		SenderID:    senderID,
		RecipientID: recipientID,
		Ciphertext:  "b2sgdGhpcyBpcyBjaXBoZXJ0ZXh0",
		Nonce:       "bm9uY2Utbm9uY2U=",
	}
}

func TestSendStoresAndPushes(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	notifier := new(MockNotifier)
	svc := NewService(repo, devices, notifier, nil, nil)

	senderID := uuid.New()
	recipientID := uuid.New()

	devices.On("GetByID", mock.Anything, senderID).Return(&domain.Device{DeviceID: senderID}, nil)
	devices.On("GetByID", mock.Anything, recipientID).Return(&domain.Device{DeviceID: recipientID}, nil)
	repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Envelope")).Return(nil)
	notifier.On("Push", recipientID, mock.AnythingOfType("*envelope.NewMessageEvent")).Return(true)

	env, err := svc.Send(context.Background(), sendInput(senderID, recipientID))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, env.EnvelopeID)
	assert.Nil(t, env.DeliveredAt)
	notifier.AssertExpectations(t)
}

func TestSendPushPayloadIsMetadataOnly(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	notifier := new(MockNotifier)
	svc := NewService(repo, devices, notifier, nil, nil)

	senderID := uuid.New()
	recipientID := uuid.New()

	devices.On("GetByID", mock.Anything, mock.Anything).Return(&domain.Device{}, nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	var captured *NewMessageEvent
	notifier.On("Push", recipientID, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*NewMessageEvent)
	}).Return(true)

	env, err := svc.Send(context.Background(), sendInput(senderID, recipientID))
	require.NoError(t, err)
	require.NotNil(t, captured)
	assert.Equal(t, "new_message", captured.Type)
	assert.Equal(t, env.EnvelopeID, captured.EnvelopeID)
	assert.Equal(t, senderID, captured.SenderID)
}

func TestSendUnknownRecipient(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	svc := NewService(repo, devices, nil, nil, nil)

	senderID := uuid.New()
	recipientID := uuid.New()

	devices.On("GetByID", mock.Anything, senderID).Return(&domain.Device{DeviceID: senderID}, nil)
	devices.On("GetByID", mock.Anything, recipientID).Return(nil, apperrors.DeviceNotFoundError())

	_, err := svc.Send(context.Background(), sendInput(senderID, recipientID))
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSendFallsBackToOfflinePush(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	notifier := new(MockNotifier)
	pusher := new(MockOfflinePusher)
	svc := NewService(repo, devices, notifier, pusher, nil)

	senderID := uuid.New()
	recipientID := uuid.New()

	devices.On("GetByID", mock.Anything, mock.Anything).Return(&domain.Device{}, nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Push", recipientID, mock.Anything).Return(false)
	pusher.On("NotifyNewEnvelope", mock.Anything, recipientID, mock.Anything, senderID, mock.Anything).Return(true)

	_, err := svc.Send(context.Background(), sendInput(senderID, recipientID))
	require.NoError(t, err)
	pusher.AssertExpectations(t)
}

func TestSendSucceedsWhenAllHintsMiss(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	notifier := new(MockNotifier)
	pusher := new(MockOfflinePusher)
	svc := NewService(repo, devices, notifier, pusher, nil)

	devices.On("GetByID", mock.Anything, mock.Anything).Return(&domain.Device{}, nil)
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	notifier.On("Push", mock.Anything, mock.Anything).Return(false)
	pusher.On("NotifyNewEnvelope", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false)

	_, err := svc.Send(context.Background(), sendInput(uuid.New(), uuid.New()))
	require.NoError(t, err)
}

func TestSendValidation(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	svc := NewService(repo, devices, nil, nil, nil)

	input := sendInput(uuid.New(), uuid.New())
	input.Ciphertext = ""

	_, err := svc.Send(context.Background(), input)
	require.Error(t, err)
	devices.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestInboxClampsLimit(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	svc := NewService(repo, devices, nil, nil, nil)

	recipientID := uuid.New()
	repo.On("Inbox", mock.Anything, recipientID, DefaultInboxLimit).Return([]*domain.InboxEntry{}, nil)

	// Oversized and zero limits both collapse to the default
	_, err := svc.Inbox(context.Background(), recipientID, 5000)
	require.NoError(t, err)
	_, err = svc.Inbox(context.Background(), recipientID, 0)
	require.NoError(t, err)

	repo.AssertNumberOfCalls(t, "Inbox", 2)
}

func TestAckValidation(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	svc := NewService(repo, devices, nil, nil, nil)

	_, err := svc.Ack(context.Background(), nil)
	require.Error(t, err)

	tooMany := make([]uuid.UUID, MaxAckBatch+1)
	for i := range tooMany {
		tooMany[i] = uuid.New()
	}
	_, err = svc.Ack(context.Background(), tooMany)
	require.Error(t, err)

	repo.AssertNotCalled(t, "Ack", mock.Anything, mock.Anything)
}

func TestAck(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	svc := NewService(repo, devices, nil, nil, nil)

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	repo.On("Ack", mock.Anything, ids).Return(int64(2), nil)

	acked, err := svc.Ack(context.Background(), ids)
	require.NoError(t, err)
	assert.Equal(t, int64(2), acked)
}

func TestCleanupBatches(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	svc := NewService(repo, devices, nil, nil, nil)

	// Full first batch forces a second pass
	repo.On("DeleteExpiredBatch", mock.Anything, mock.Anything, cleanupBatchSize).Return(int64(cleanupBatchSize), nil).Once()
	repo.On("DeleteExpiredBatch", mock.Anything, mock.Anything, cleanupBatchSize).Return(int64(40), nil).Once()

	total, err := svc.Cleanup(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(cleanupBatchSize+40), total)
	repo.AssertNumberOfCalls(t, "DeleteExpiredBatch", 2)
}

func TestCleanupCancelled(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	svc := NewService(repo, devices, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Cleanup(ctx, time.Hour)
	require.Error(t, err)
	repo.AssertNotCalled(t, "DeleteExpiredBatch", mock.Anything, mock.Anything, mock.Anything)
}
