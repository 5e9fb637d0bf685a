package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"messenger/internal/types"
)

func TestUserId(t *testing.T) {
	tcases := []struct {
		name     string
		ctx      context.Context
		userId   int
		expected bool
	}{
		{
			name:     "no user ID",
			ctx:      context.Background(),
			expected: false,
		},
		{
			name:     "user ID set",
			ctx:      WithUserId(context.Background(), 42),
			userId:   42,
			expected: true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			userId, ok := UserId(tc.ctx)
			assert.Equal(t, tc.expected, ok, "expected UserId to return %v", tc.expected)
			assert.Equal(t, tc.userId, userId, "expected UserId to return %d", tc.userId)
		})
	}
}

func TestJwtRoundTrip(t *testing.T) {
	app := &MessengerApp{signingKey: []byte("test-signing-key")}

	u := types.User{
		Id:           7,
		Name:         "test",
		EmailAddress: "test@example.com",
	}

	token, err := app.createJwtForSession(u, defaultJwtExpiration)
	assert.NoError(t, err, "expected token to be created")

	userId, err := app.extractUserIdFromToken(token)
	assert.NoError(t, err, "expected token to parse")
	assert.Equal(t, u.Id, userId, "expected user id claim to round-trip")

	t.Run("expired token", func(t *testing.T) {
		token, err := app.createJwtForSession(u, -time.Minute)
		assert.NoError(t, err)

		_, err = app.extractUserIdFromToken(token)
		assert.Error(t, err, "expected expired token to be rejected")
	})

	t.Run("wrong signing key", func(t *testing.T) {
		other := &MessengerApp{signingKey: []byte("other-key")}
		_, err := other.extractUserIdFromToken(token)
		assert.Error(t, err, "expected token signed with a different key to be rejected")
	})
}

func Test_validatePassword(t *testing.T) {
	tcases := []struct {
		name     string
		password string
		errMsg   string
	}{
		{
			name:     "valid password",
			password: "Passw0rd!",
		},
		{
			name:     "too short",
			password: "Pw0rd!",
			errMsg:   "password must be at least 8 characters long",
		},
		{
			name:     "missing number",
			password: "Password!",
			errMsg:   "password must contain at least 1 number",
		},
		{
			name:     "missing special character",
			password: "Passw0rd",
			errMsg:   "password must contain at least 1 special character",
		},
		{
			name:     "missing capital letter",
			password: "passw0rd!",
			errMsg:   "password must contain at least 1 capital letter",
		},
		{
			name:     "missing lower case letter",
			password: "PASSW0RD!",
			errMsg:   "password must contain at least 1 lower case letter",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePassword(tc.password)
			if tc.errMsg == "" {
				assert.NoError(t, err, "expected password to be accepted")
				return
			}
			assert.EqualError(t, err, tc.errMsg)
		})
	}
}

func Test_hashPassword(t *testing.T) {
	hash, err := hashPassword("Passw0rd!")
	assert.NoError(t, err, "expected password to hash")
	assert.True(t, verifyPassword(hash, "Passw0rd!"), "expected hash to verify")
	assert.False(t, verifyPassword(hash, "wrong"), "expected wrong password to fail")
}
