package worker

import (
	"fmt"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/token"

	"schedule-service/internal/config"
)

// NewAPNSClient returns nil when credentials are absent, which puts the
// worker in mock mode.
func NewAPNSClient(cfg *config.Config) (PushClient, error) {
	if !cfg.APNSConfigured() {
		return nil, nil
	}

	authKey, err := token.AuthKeyFromFile(cfg.APNSAuthKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read APNs auth key: %w", err)
	}

	authToken := &token.Token{
		AuthKey: authKey,
		KeyID:   cfg.APNSKeyID,
		TeamID:  cfg.APNSTeamID,
	}

	if cfg.APNSMode == "production" {
		return apns2.NewTokenClient(authToken).Production(), nil
	}
	return apns2.NewTokenClient(authToken).Development(), nil
}
