package auth

import (
	"testing"
	"time"

	"github.com/BradenHooton/accountd/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOneTimeTokenGenerator_Generate(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	gen := NewOneTimeTokenGenerator(time.Hour)
	gen.now = func() time.Time { return fixed }

	token, err := gen.Generate(models.PurposeEmailVerification)
	require.NoError(t, err)

	assert.Len(t, token.Plain, OneTimeTokenBytes*2)
	assert.Equal(t, models.PurposeEmailVerification, token.Purpose)
	assert.Equal(t, fixed.Add(time.Hour), token.ExpiresAt)
	assert.Equal(t, HashOneTimeToken(models.PurposeEmailVerification, token.Plain), token.Hash)
	assert.NotEqual(t, token.Plain, token.Hash)
}

func TestOneTimeTokenGenerator_Unique(t *testing.T) {
	gen := NewOneTimeTokenGenerator(time.Hour)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := gen.Generate(models.PurposePasswordReset)
		require.NoError(t, err)
		assert.False(t, seen[token.Plain])
		seen[token.Plain] = true
	}
}

func TestHashOneTimeToken_PurposeSeparation(t *testing.T) {
	plain := "0123456789abcdef"

	verification := HashOneTimeToken(models.PurposeEmailVerification, plain)
	reset := HashOneTimeToken(models.PurposePasswordReset, plain)

	assert.NotEqual(t, verification, reset)
	assert.Equal(t, verification, HashOneTimeToken(models.PurposeEmailVerification, plain))
}
