package apikeys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// KeyPrefix identifies console API keys
	KeyPrefix = "console_"
	// KeyLength is the number of random bytes in a key (32 bytes = 256 bits)
	KeyLength = 32
)

// GenerateKey creates a new API key.
// Format: console_<base64url(32 random bytes)>
func GenerateKey() (plaintext string, keyHash string, keyPreview string, err error) {
	randomBytes := make([]byte, KeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	full := KeyPrefix + encoded

	// SHA256 hash for storage; the plaintext is never persisted
	hash := sha256.Sum256([]byte(full))
	hashStr := hex.EncodeToString(hash[:])

	// First 8 chars after the prefix, for identification in listings
	preview := KeyPrefix
	if len(encoded) >= 8 {
		preview = KeyPrefix + encoded[:8]
	}

	return full, hashStr, preview, nil
}

// HashKey computes the SHA256 hash of a plaintext key for lookup
func HashKey(plaintext string) string {
	hash := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(hash[:])
}

// ValidateKeyFormat checks that a presented credential looks like one of ours
// before any storage lookup happens.
func ValidateKeyFormat(plaintext string) error {
	if !strings.HasPrefix(plaintext, KeyPrefix) {
		return fmt.Errorf("key must start with %q", KeyPrefix)
	}

	encoded := strings.TrimPrefix(plaintext, KeyPrefix)
	if encoded == "" {
		return fmt.Errorf("key is too short")
	}

	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid key encoding: %w", err)
	}
	return nil
}
