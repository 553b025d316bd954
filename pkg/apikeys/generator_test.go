package apikeys

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	plaintext, keyHash, keyPreview, err := GenerateKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(plaintext, KeyPrefix))
	assert.Equal(t, 64, len(keyHash)) // SHA-256 = 64 hex chars
	assert.Equal(t, len(KeyPrefix)+8, len(keyPreview))
	assert.True(t, strings.HasPrefix(plaintext, keyPreview))

	// Hash of the plaintext matches the stored hash
	assert.Equal(t, keyHash, HashKey(plaintext))
}

func TestGenerateKeyUnique(t *testing.T) {
	first, _, _, err := GenerateKey()
	require.NoError(t, err)
	second, _, _, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestValidateKeyFormat(t *testing.T) {
	plaintext, _, _, err := GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid key", plaintext, false},
		{"wrong prefix", "token_abc123", true},
		{"bare prefix", "console_", true},
		{"invalid encoding", "console_!!not-base64url!!", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKeyFormat(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
