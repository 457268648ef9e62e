package utils

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/raffle-checkout/internal/model"
)

const secret = "test-secret"

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken(secret, model.Identity{UserID: "u-1", Name: "Ana", Phone: "+5511999"}, time.Hour)
	require.NoError(t, err)
	assert.True(t, tok.Exp.After(time.Now()))

	id, err := NewJWTVerifier(secret).VerifyToken(context.Background(), tok.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.UserID)
	assert.Equal(t, "Ana", id.Name)
	assert.Equal(t, "+5511999", id.Phone)
	assert.Equal(t, RoleBuyer, id.Role)
}

func TestParseAccessToken_Rejects(t *testing.T) {
	good, err := NewAccessToken(secret, model.Identity{UserID: "u-1"}, time.Hour)
	require.NoError(t, err)
	expired, err := NewAccessToken(secret, model.Identity{UserID: "u-1"}, -time.Minute)
	require.NoError(t, err)
	anonymous, err := NewAccessToken(secret, model.Identity{}, time.Hour)
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u-1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]struct{ secret, raw string }{
		"empty":        {secret, ""},
		"garbage":      {secret, "not-a-jwt"},
		"wrong secret": {"other", good.Token},
		"expired":      {secret, expired.Token},
		"no subject":   {secret, anonymous.Token},
		"alg none":     {secret, unsigned},
	}
	for name, c := range cases {
		_, err := ParseAccessToken(c.secret, c.raw)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}
