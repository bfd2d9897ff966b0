package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateToken(t *testing.T) {
	validator, err := NewJWTValidator("s3cret", "tattoo-directory")
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		token, err := GenerateToken("s3cret", "tattoo-directory", "ops@example.com", []string{"admin"}, time.Hour)
		require.NoError(t, err)

		claims, err := validator.ValidateToken("Bearer " + token)

		require.NoError(t, err)
		assert.Equal(t, "ops@example.com", claims.Subject)
		assert.True(t, claims.HasRole("admin"))
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := GenerateToken("other", "tattoo-directory", "ops", nil, time.Hour)
		require.NoError(t, err)

		_, err = validator.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := GenerateToken("s3cret", "tattoo-directory", "ops", nil, -time.Minute)
		require.NoError(t, err)

		_, err = validator.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		token, err := GenerateToken("s3cret", "someone-else", "ops", nil, time.Hour)
		require.NoError(t, err)

		_, err = validator.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := validator.ValidateToken("Bearer ")
		assert.ErrorIs(t, err, ErrMissingToken)
	})
}

func TestNewJWTValidator_RequiresSecret(t *testing.T) {
	_, err := NewJWTValidator("", "")
	assert.Error(t, err)
}

func TestClaimsContext(t *testing.T) {
	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), &Claims{Roles: []string{"admin"}})
	claims, ok := ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.True(t, claims.HasRole("admin"))
}

func TestKeyedLimiter(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	l := NewKeyedLimiter(60, 2)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"))

	now = now.Add(time.Hour)
	l.Allow("10.0.0.3")
	assert.Len(t, l.limiters, 1)
}
