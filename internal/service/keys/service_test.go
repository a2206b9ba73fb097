package keys

import (
	"context"
	"strings"
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

func (m *MockRepository) Publish(ctx context.Context, deviceID uuid.UUID, identityKey, signedPreKey, signature string, oneTimePreKeys []string) (*domain.KeyBundleHandle, error) {
	args := m.Called(ctx, deviceID, identityKey, signedPreKey, signature, oneTimePreKeys)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KeyBundleHandle), args.Error(1)
}

func (m *MockRepository) Fetch(ctx context.Context, deviceID uuid.UUID) (*domain.FetchedBundle, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FetchedBundle), args.Error(1)
}

func (m *MockRepository) ListByUser(ctx context.Context, userID string) ([]*domain.BundleSummary, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.BundleSummary), args.Error(1)
}

func (m *MockRepository) CountOneTimePreKeys(ctx context.Context, deviceID uuid.UUID) (int, error) {
	args := m.Called(ctx, deviceID)
	return args.Int(0), args.Error(1)
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

var (
	testIdentityKey  = strings.Repeat("i", 44)
	testSignedPreKey = strings.Repeat("s", 44)
	testSignature    = strings.Repeat("g", 88)
)

func validInput(deviceID uuid.UUID) *PublishInput {
	return &PublishInput{
		DeviceID:       deviceID,
		IdentityKey:    testIdentityKey,
		SignedPreKey:   testSignedPreKey,
		Signature:      testSignature,
		OneTimePreKeys: []string{strings.Repeat("o", 44), strings.Repeat("p", 44)},
	}
}

func TestPublish(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	svc := NewService(repo, devices, nil)

	deviceID := uuid.New()
	input := validInput(deviceID)

	devices.On("GetByID", mock.Anything, deviceID).Return(&domain.Device{DeviceID: deviceID}, nil)
	repo.On("Publish", mock.Anything, deviceID, input.IdentityKey, input.SignedPreKey, input.Signature, input.OneTimePreKeys).
		Return(&domain.KeyBundleHandle{BundleID: uuid.New(), DeviceID: deviceID, UpdatedAt: time.Now()}, nil)

	handle, err := svc.Publish(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, deviceID, handle.DeviceID)
	repo.AssertExpectations(t)
}

func TestPublishUnknownDevice(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	svc := NewService(repo, devices, nil)

	deviceID := uuid.New()
	devices.On("GetByID", mock.Anything, deviceID).Return(nil, apperrors.DeviceNotFoundError())

	_, err := svc.Publish(context.Background(), validInput(deviceID))
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	repo.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishValidation(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	svc := NewService(repo, devices, nil)

	deviceID := uuid.New()

	cases := []struct {
		name   string
		mutate func(*PublishInput)
	}{
		{"identity key too short", func(in *PublishInput) { in.IdentityKey = strings.Repeat("i", 31) }},
		{"identity key too long", func(in *PublishInput) { in.IdentityKey = strings.Repeat("i", 129) }},
		{"signed pre-key too short", func(in *PublishInput) { in.SignedPreKey = strings.Repeat("s", 31) }},
		{"signature too short", func(in *PublishInput) { in.Signature = strings.Repeat("g", 63) }},
		{"signature too long", func(in *PublishInput) { in.Signature = strings.Repeat("g", 257) }},
		{"too many one-time keys", func(in *PublishInput) {
			in.OneTimePreKeys = make([]string, MaxOneTimePreKeys+1)
			for i := range in.OneTimePreKeys {
				in.OneTimePreKeys[i] = strings.Repeat("o", 44)
			}
		}},
		{"one-time key too short", func(in *PublishInput) { in.OneTimePreKeys = []string{strings.Repeat("o", 31)} }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput(deviceID)
			tc.mutate(input)

			_, err := svc.Publish(context.Background(), input)
			require.Error(t, err)
			appErr := apperrors.GetAppError(err)
			require.NotNil(t, appErr)
			assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
		})
	}

	devices.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestPublishEmptyPoolAllowed(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	svc := NewService(repo, devices, nil)

	deviceID := uuid.New()
	input := validInput(deviceID)
	input.OneTimePreKeys = nil

	devices.On("GetByID", mock.Anything, deviceID).Return(&domain.Device{DeviceID: deviceID}, nil)
	repo.On("Publish", mock.Anything, deviceID, input.IdentityKey, input.SignedPreKey, input.Signature, []string(nil)).
		Return(&domain.KeyBundleHandle{BundleID: uuid.New(), DeviceID: deviceID}, nil)

	_, err := svc.Publish(context.Background(), input)
	require.NoError(t, err)
}

func TestFetch(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	svc := NewService(repo, devices, nil)

	deviceID := uuid.New()
	key := strings.Repeat("o", 44)
	repo.On("Fetch", mock.Anything, deviceID).Return(&domain.FetchedBundle{
		DeviceID:      deviceID,
		OneTimePreKey: &key,
	}, nil)

	bundle, err := svc.Fetch(context.Background(), deviceID)
	require.NoError(t, err)
	require.NotNil(t, bundle.OneTimePreKey)
	assert.Equal(t, key, *bundle.OneTimePreKey)
}

func TestFetchNoBundle(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	svc := NewService(repo, devices, nil)

	deviceID := uuid.New()
	repo.On("Fetch", mock.Anything, deviceID).Return(nil, apperrors.KeyBundleNotFoundError())

	_, err := svc.Fetch(context.Background(), deviceID)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestFetchAllForUserValidation(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	svc := NewService(repo, devices, nil)

	_, err := svc.FetchAllForUser(context.Background(), strings.Repeat("u", 65))
	require.Error(t, err)
	repo.AssertNotCalled(t, "ListByUser", mock.Anything, mock.Anything)
}

func TestCountOneTimePreKeys(t *testing.T) {
	repo := new(MockRepository)
	devices := new(MockDeviceGetter)
	svc := NewService(repo, devices, nil)

	deviceID := uuid.New()
	repo.On("CountOneTimePreKeys", mock.Anything, deviceID).Return(42, nil)

	count, err := svc.CountOneTimePreKeys(context.Background(), deviceID)
	require.NoError(t, err)
	assert.Equal(t, 42, count)
}
