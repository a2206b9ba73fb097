package device

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

func (m *MockRepository) Upsert(ctx context.Context, userID, publicKey string) (*domain.Device, error) {
	args := m.Called(ctx, userID, publicKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Device), args.Error(1)
}

func (m *MockRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Device, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Device), args.Error(1)
}

func (m *MockRepository) GetByID(ctx context.Context, deviceID uuid.UUID) (*domain.Device, error) {
	args := m.Called(ctx, deviceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Device), args.Error(1)
}

type MockBundleChecker struct {
	mock.Mock
}

func (m *MockBundleChecker) HasBundles(ctx context.Context, deviceIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	args := m.Called(ctx, deviceIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]bool), args.Error(1)
}

const validPublicKey = "AAAAC3NzaC1lZDI1NTE5AAAAIGhpZXJlbXkx"

func TestRegister(t *testing.T) {
	repo := new(MockRepository)
	bundles := new(MockBundleChecker)
	svc := NewService(repo, bundles)

	expected := &domain.Device{
		DeviceID:  uuid.New(),
		UserID:    "alice",
		PublicKey: validPublicKey,
	}
	repo.On("Upsert", mock.Anything, "alice", validPublicKey).Return(expected, nil)

	d, err := svc.Register(context.Background(), "alice", validPublicKey)
	require.NoError(t, err)
	assert.Equal(t, expected.DeviceID, d.DeviceID)
	repo.AssertExpectations(t)
}

func TestRegisterValidation(t *testing.T) {
	repo := new(MockRepository)
	bundles := new(MockBundleChecker)
	svc := NewService(repo, bundles)

	cases := []struct {
		name      string
		userID    string
		publicKey string
	}{
		{"empty user id", "", validPublicKey},
		{"user id too long", strings.Repeat("a", 65), validPublicKey},
		{"public key too short", "alice", strings.Repeat("k", 31)},
		{"public key too long", "alice", strings.Repeat("k", 129)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.userID, tc.publicKey)
			require.Error(t, err)
			appErr := apperrors.GetAppError(err)
			require.NotNil(t, appErr)
			assert.Equal(t, apperrors.ErrCodeValidation, appErr.Code)
		})
	}

	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
}

func TestListByUser(t *testing.T) {
	repo := new(MockRepository)
	bundles := new(MockBundleChecker)
	svc := NewService(repo, bundles)

	withBundle := &domain.Device{DeviceID: uuid.New(), UserID: "alice", PublicKey: validPublicKey, LastSeenAt: time.Now()}
	withoutBundle := &domain.Device{DeviceID: uuid.New(), UserID: "alice", PublicKey: validPublicKey + "2", LastSeenAt: time.Now()}

	repo.On("ListByUser", mock.Anything, "alice").Return([]*domain.Device{withBundle, withoutBundle}, nil)
	bundles.On("HasBundles", mock.Anything, []uuid.UUID{withBundle.DeviceID, withoutBundle.DeviceID}).Return(map[uuid.UUID]bool{
		withBundle.DeviceID:    true,
		withoutBundle.DeviceID: false,
	}, nil)

	summaries, err := svc.ListByUser(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.True(t, summaries[0].HasKeyBundle)
	assert.False(t, summaries[1].HasKeyBundle)
}

func TestListByUserEmpty(t *testing.T) {
	repo := new(MockRepository)
	bundles := new(MockBundleChecker)
	svc := NewService(repo, bundles)

	repo.On("ListByUser", mock.Anything, "nobody").Return([]*domain.Device{}, nil)
	bundles.On("HasBundles", mock.Anything, []uuid.UUID{}).Return(map[uuid.UUID]bool{}, nil)

	summaries, err := svc.ListByUser(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestGetByIDNotFound(t *testing.T) {
	repo := new(MockRepository)
	bundles := new(MockBundleChecker)
	svc := NewService(repo, bundles)

	deviceID := uuid.New()
	repo.On("GetByID", mock.Anything, deviceID).Return(nil, apperrors.DeviceNotFoundError())

	_, err := svc.GetByID(context.Background(), deviceID)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
