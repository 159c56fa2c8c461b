package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHMACValidator(t *testing.T) {
	_, err := NewHMACValidator("", "crew")
	assert.ErrorIs(t, err, ErrMissingSecret)

	v, err := NewHMACValidator("secret", "crew")
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestHMACValidator_RoundTrip(t *testing.T) {
	v, err := NewHMACValidator("secret", "crew")
	require.NoError(t, err)

	token, err := v.Sign("user-1", time.Hour, "admin")
	require.NoError(t, err)

	claims, err := v.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "crew", claims.Issuer)
	assert.Equal(t, []string{"admin"}, claims.Roles)
}

func TestHMACValidator_Rejects(t *testing.T) {
	v, err := NewHMACValidator("secret", "crew")
	require.NoError(t, err)

	other, err := NewHMACValidator("other-secret", "crew")
	require.NoError(t, err)

	wrongIssuer, err := NewHMACValidator("secret", "someone-else")
	require.NoError(t, err)

	sign := func(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}

	now := time.Now()
	tests := []struct {
		name    string
		token   func(t *testing.T) string
		wantErr error
	}{
		{
			name:    "garbage",
			token:   func(*testing.T) string { return "not.a.jwt" },
			wantErr: ErrInvalidToken,
		},
		{
			name: "wrong secret",
			token: func(t *testing.T) string {
				s, err := other.Sign("user-1", time.Hour)
				require.NoError(t, err)
				return s
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				s, err := v.Sign("user-1", -time.Hour)
				require.NoError(t, err)
				return s
			},
			wantErr: ErrTokenExpired,
		},
		{
			name: "wrong issuer",
			token: func(t *testing.T) string {
				s, err := wrongIssuer.Sign("user-1", time.Hour)
				require.NoError(t, err)
				return s
			},
			wantErr: ErrInvalidIssuer,
		},
		{
			name: "missing expiry",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{Subject: "user-1", Issuer: "crew"})
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS256, []byte("secret"), jwt.RegisteredClaims{
					Issuer:    "crew",
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				})
			},
			wantErr: ErrInvalidToken,
		},
		{
			name: "other algorithm",
			token: func(t *testing.T) string {
				return sign(t, jwt.SigningMethodHS512, []byte("secret"), jwt.RegisteredClaims{
					Subject:   "user-1",
					Issuer:    "crew",
					ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				})
			},
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateToken(context.Background(), tt.token(t))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHMACValidator_AnyIssuer(t *testing.T) {
	signer, err := NewHMACValidator("secret", "somebody")
	require.NoError(t, err)
	v, err := NewHMACValidator("secret", "")
	require.NoError(t, err)

	token, err := signer.Sign("user-1", time.Minute)
	require.NoError(t, err)

	_, err = v.ValidateToken(context.Background(), token)
	assert.NoError(t, err)
}
