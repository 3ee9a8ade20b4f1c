package biometric

import (
	"context"

	"github.com/BradenHooton/pinguard/internal/models"
)

// Unavailable is the sensor for hosts without biometric hardware.
type Unavailable struct{}

func (Unavailable) HasHardware(ctx context.Context) (bool, error) { return false, nil }

func (Unavailable) IsEnrolled(ctx context.Context) (bool, error) { return false, nil }

func (Unavailable) SupportedKinds(ctx context.Context) ([]models.BiometricKind, error) {
	return nil, nil
}

func (Unavailable) Authenticate(ctx context.Context, prompt string) error {
	return models.ErrBiometricUnavailable
}
