package push

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"akistel-relay/pkg/logger"
)

// Provider defines interface for sending push notifications
type Provider interface {
	Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error)
}

// SendResult contains the result of a push notification send operation
type SendResult struct {
	SuccessCount  int
	FailureCount  int
	InvalidTokens []string
	Errors        []error
}

// Notification represents a push notification
type Notification struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"` // high, normal, low
	Sound    string            `json:"sound,omitempty"`
	Badge    *int              `json:"badge,omitempty"`
}

// TokenType represents the type of push notification token
type TokenType string

const (
	TokenTypeFCM  TokenType = "fcm"  // Firebase Cloud Messaging
	TokenTypeAPNs TokenType = "apns" // Apple Push Notification Service
	TokenTypeWeb  TokenType = "web"  // Web Push
)

// Token represents a push notification token for a device.
// A device holds at most one token; re-registering replaces it.
type Token struct {
	DeviceID  uuid.UUID `json:"device_id"`
	Token     string    `json:"token"`
	Type      TokenType `json:"type"`
	Platform  string    `json:"platform,omitempty"` // ios, android, web
	UpdatedAt time.Time `json:"updated_at"`
}

// TokenRepository defines interface for storing and retrieving push tokens
type TokenRepository interface {
	Store(ctx context.Context, token *Token) error
	GetByDevice(ctx context.Context, deviceID uuid.UUID) (*Token, error)
	Delete(ctx context.Context, deviceID uuid.UUID) error
}

// Service handles push notification operations
type Service struct {
	provider Provider
	repo     TokenRepository
}

// NewService creates a new push notification service
func NewService(provider Provider, repo TokenRepository) *Service {
	return &Service{
		provider: provider,
		repo:     repo,
	}
}

// RegisterToken registers a push notification token for a device,
// replacing any previous one
func (s *Service) RegisterToken(ctx context.Context, token *Token) error {
	token.UpdatedAt = time.Now().UTC()
	return s.repo.Store(ctx, token)
}

// UnregisterToken removes the device's push notification token
func (s *Service) UnregisterToken(ctx context.Context, deviceID uuid.UUID) error {
	return s.repo.Delete(ctx, deviceID)
}

// GetToken returns the device's registered token, nil when none exists
func (s *Service) GetToken(ctx context.Context, deviceID uuid.UUID) (*Token, error) {
	return s.repo.GetByDevice(ctx, deviceID)
}

// NotifyNewEnvelope wakes an offline recipient device. The payload carries
// envelope metadata only; ciphertext never leaves the relay through a push
// provider. Returns true when the notification was handed to the provider.
func (s *Service) NotifyNewEnvelope(ctx context.Context, recipientID uuid.UUID, envelopeID uuid.UUID, senderID uuid.UUID, createdAt time.Time) bool {
	token, err := s.repo.GetByDevice(ctx, recipientID)
	if err != nil {
		logger.Warn("Failed to get push token for device",
			zap.String("device_id", recipientID.String()),
			zap.Error(err))
		return false
	}
	if token == nil {
		return false
	}

	notification := &Notification{
		Title:    "New Message",
		Body:     "You have a new encrypted message",
		Priority: "high",
		Sound:    "default",
		Data: map[string]string{
			"type":        "new_message",
			"envelope_id": envelopeID.String(),
			"sender_id":   senderID.String(),
			"timestamp":   fmt.Sprintf("%d", createdAt.UnixMilli()),
		},
	}

	result, err := s.provider.Send(ctx, notification, []string{token.Token})
	if err != nil {
		logger.Warn("Failed to send new message notification",
			zap.String("device_id", recipientID.String()),
			zap.String("envelope_id", envelopeID.String()),
			zap.Error(err))
		return false
	}

	if len(result.InvalidTokens) > 0 {
		s.handleInvalidTokens(ctx, recipientID, result.InvalidTokens)
		return false
	}

	return result.SuccessCount > 0
}

// handleInvalidTokens drops tokens the provider rejected as dead
func (s *Service) handleInvalidTokens(ctx context.Context, deviceID uuid.UUID, invalidTokens []string) {
	for range invalidTokens {
		if err := s.repo.Delete(ctx, deviceID); err != nil {
			logger.Warn("Failed to delete invalid push token",
				zap.String("device_id", deviceID.String()),
				zap.Error(err))
		}
	}
}

// MockProvider is a mock implementation for development/testing
type MockProvider struct {
	NotificationsSent int
}

// Send implements Provider interface
func (m *MockProvider) Send(ctx context.Context, notification *Notification, tokens []string) (*SendResult, error) {
	m.NotificationsSent++

	logger.Debug("MockProvider: Sending notification",
		zap.String("title", notification.Title),
		zap.Int("token_count", len(tokens)))

	return &SendResult{
		SuccessCount:  len(tokens),
		FailureCount:  0,
		InvalidTokens: nil,
		Errors:        nil,
	}, nil
}
