package jwt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DeviceClaims represents the claims of a device session token. The token is
// issued on registration and binds a connection or request to one device.
type DeviceClaims struct {
	DeviceID uuid.UUID `json:"device_id"`
	UserID   string    `json:"user_id"`
	jwt.RegisteredClaims
}

// DeviceTokenManager signs and validates device session tokens
type DeviceTokenManager struct {
	secretKey     string
	tokenDuration time.Duration
}

// NewDeviceTokenManager creates a new device token manager
func NewDeviceTokenManager(secretKey string, tokenDuration time.Duration) *DeviceTokenManager {
	return &DeviceTokenManager{
		secretKey:     secretKey,
		tokenDuration: tokenDuration,
	}
}

// Generate creates a signed token for a registered device
func (m *DeviceTokenManager) Generate(deviceID uuid.UUID, userID string) (string, error) {
	claims := &DeviceClaims{
		DeviceID: deviceID,
		UserID:   userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "akistel-relay",
			Subject:   deviceID.String(),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// Validate validates and parses a device session token
func (m *DeviceTokenManager) Validate(tokenString string) (*DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.secretKey), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*DeviceClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

// ExtractDeviceID extracts the device ID from a token without full validation (for logging)
func (m *DeviceTokenManager) ExtractDeviceID(tokenString string) (uuid.UUID, error) {
	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, &DeviceClaims{})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*DeviceClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid claims")
	}

	return claims.DeviceID, nil
}
