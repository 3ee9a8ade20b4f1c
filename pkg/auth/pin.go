package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultPinCost = 12 // tuned for mobile CPUs; verification stays under ~250ms
	MinPinCost     = bcrypt.MinCost
)

var (
	ErrPinLength   = errors.New("pin must be 4 or 6 digits")
	ErrPinFormat   = errors.New("pin must contain digits only")
	ErrPinMismatch = errors.New("pin does not match")
)

// ValidatePin checks the PIN shape only. Weak-PIN policy is left to the UI.
func ValidatePin(pin string) error {
	if len(pin) != 4 && len(pin) != 6 {
		return ErrPinLength
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrPinFormat
		}
	}
	return nil
}

// HashPin validates and hashes a PIN with bcrypt at the given cost.
func HashPin(pin string, cost int) ([]byte, error) {
	if err := ValidatePin(pin); err != nil {
		return nil, err
	}
	if cost < MinPinCost || cost > bcrypt.MaxCost {
		cost = DefaultPinCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash pin: %w", err)
	}
	return hash, nil
}

// ComparePin returns nil when pin matches hash, ErrPinMismatch when it does not.
func ComparePin(hash []byte, pin string) error {
	err := bcrypt.CompareHashAndPassword(hash, []byte(pin))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPinMismatch
	}
	if err != nil {
		return fmt.Errorf("failed to compare pin: %w", err)
	}
	return nil
}
