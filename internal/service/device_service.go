package service

import (
	"context"
	"strings"

	"schedule-service/internal/model"
	"schedule-service/internal/repository"
)

const maxDeviceTokenLength = 512

type DeviceService interface {
	RegisterDevice(ctx context.Context, actor model.Identity, token string) (*model.DeviceToken, error)
}

type deviceService struct {
	tokens repository.DeviceTokenRepository
}

func NewDeviceService(tokens repository.DeviceTokenRepository) DeviceService {
	return &deviceService{tokens: tokens}
}

// RegisterDevice binds a push token to the caller, taking it over from any
// previous owner.
func (s *deviceService) RegisterDevice(ctx context.Context, actor model.Identity, token string) (*model.DeviceToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, validationf("device token is required")
	}
	if len(token) > maxDeviceTokenLength {
		return nil, validationf("device token is too long")
	}

	registered, err := s.tokens.Register(ctx, actor.CallerID, token)
	if err != nil {
		return nil, persistence("register device token", err)
	}
	return registered, nil
}
