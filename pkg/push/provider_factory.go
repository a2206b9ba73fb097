package push

import (
	"fmt"

	"go.uber.org/zap"

	"akistel-relay/pkg/env"
	"akistel-relay/pkg/logger"
)

// Provider names accepted in PUSH_PROVIDER
const (
	providerNameMock = "mock"
	providerNameFCM  = "fcm"
	providerNameAPNs = "apns"
)

// NewProvider builds the push provider named by PUSH_PROVIDER. An unknown
// name falls back to the mock so a misconfigured deployment still boots;
// missing credentials for a known provider are an error.
func NewProvider() (Provider, error) {
	name := env.GetString("PUSH_PROVIDER", providerNameMock)

	switch name {
	case providerNameFCM:
		return fcmProviderFromEnv()
	case providerNameAPNs:
		return apnsProviderFromEnv()
	case providerNameMock:
		logger.Info("Using mock push provider")
		return &MockProvider{}, nil
	default:
		logger.Warn("Unknown PUSH_PROVIDER, falling back to mock",
			zap.String("provider", name))
		return &MockProvider{}, nil
	}
}

func fcmProviderFromEnv() (Provider, error) {
	cfg := &FCMConfig{
		ProjectID:       env.GetString("FCM_PROJECT_ID", ""),
		CredentialsPath: env.GetString("FCM_CREDENTIALS_PATH", ""),
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("FCM provider requires FCM_PROJECT_ID")
	}
	return NewFCMProvider(cfg)
}

func apnsProviderFromEnv() (Provider, error) {
	cfg := &APNsConfig{
		BundleID:            env.GetString("APNS_BUNDLE_ID", ""),
		KeyPath:             env.GetString("APNS_KEY_PATH", ""),
		KeyID:               env.GetString("APNS_KEY_ID", ""),
		TeamID:              env.GetString("APNS_TEAM_ID", ""),
		CertificatePath:     env.GetString("APNS_CERT_PATH", ""),
		CertificatePassword: env.GetString("APNS_CERT_PASSWORD", ""),
		Production:          env.GetBool("APNS_PRODUCTION", false),
	}
	if cfg.BundleID == "" {
		return nil, fmt.Errorf("APNs provider requires APNS_BUNDLE_ID")
	}

	hasTokenAuth := cfg.KeyPath != "" && cfg.KeyID != "" && cfg.TeamID != ""
	if !hasTokenAuth && cfg.CertificatePath == "" {
		return nil, fmt.Errorf("APNs provider requires token auth (APNS_KEY_PATH, APNS_KEY_ID, APNS_TEAM_ID) or a certificate (APNS_CERT_PATH)")
	}

	return NewAPNsProvider(cfg)
}
