package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const bridgeTokenPrefix = "pgb_"

// BridgeTokenManager holds the hash of the per-launch token the UI shell
// presents on every bridge request.
type BridgeTokenManager struct {
	hash [sha256.Size]byte
}

// GenerateBridgeToken returns a new token in the format pgb_<64 hex chars>.
func GenerateBridgeToken() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return bridgeTokenPrefix + hex.EncodeToString(randomBytes), nil
}

// NewBridgeTokenManager keeps only the hash of plainToken.
func NewBridgeTokenManager(plainToken string) (*BridgeTokenManager, error) {
	if err := validateBridgeToken(plainToken); err != nil {
		return nil, err
	}
	return &BridgeTokenManager{hash: sha256.Sum256([]byte(plainToken))}, nil
}

func validateBridgeToken(plainToken string) error {
	if !strings.HasPrefix(plainToken, bridgeTokenPrefix) {
		return errors.New("invalid bridge token format: missing prefix")
	}
	if len(plainToken) != len(bridgeTokenPrefix)+64 {
		return fmt.Errorf("invalid bridge token format: expected %d chars, got %d", len(bridgeTokenPrefix)+64, len(plainToken))
	}
	return nil
}

// Verify compares the presented token against the stored hash in constant time.
func (m *BridgeTokenManager) Verify(plainToken string) bool {
	presented := sha256.Sum256([]byte(plainToken))
	return subtle.ConstantTimeCompare(presented[:], m.hash[:]) == 1
}
