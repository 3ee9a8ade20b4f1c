package services

import (
	"errors"

	"github.com/BradenHooton/pinguard/internal/models"
	"github.com/BradenHooton/pinguard/pkg/auth"
)

// BcryptHasher is the PinHasher used in production.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(pin string) ([]byte, error) {
	hash, err := auth.HashPin(pin, h.Cost)
	if err != nil {
		return nil, mapPinError(err)
	}
	return hash, nil
}

func (h BcryptHasher) Compare(hash []byte, pin string) error {
	return auth.ComparePin(hash, pin)
}

func mapPinError(err error) error {
	switch {
	case errors.Is(err, auth.ErrPinLength):
		return models.ErrInvalidPinLength
	case errors.Is(err, auth.ErrPinFormat):
		return models.ErrInvalidPinFormat
	}
	return err
}
