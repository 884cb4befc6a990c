package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_Success(t *testing.T) {
	hash, err := HashPassword("SecurePass1!")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "SecurePass1!", hash)
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}

func TestComparePassword(t *testing.T) {
	hash, err := HashPassword("SecurePass1!")
	require.NoError(t, err)

	assert.NoError(t, ComparePassword(hash, "SecurePass1!"))
	assert.Error(t, ComparePassword(hash, "WrongPass1!"))
}

func TestGenerateOpaqueToken(t *testing.T) {
	a, err := GenerateOpaqueToken()
	require.NoError(t, err)
	b, err := GenerateOpaqueToken()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestHashToken_Deterministic(t *testing.T) {
	assert.Equal(t, HashToken("token-1"), HashToken("token-1"))
	assert.NotEqual(t, HashToken("token-1"), HashToken("token-2"))
	assert.Len(t, HashToken("token-1"), 64)
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "SecurePass1!", false},
		{"too short", "Ab1!", true},
		{"no uppercase", "securepass1!", true},
		{"no lowercase", "SECUREPASS1!", true},
		{"no digit", "SecurePass!", true},
		{"no special", "SecurePass1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
