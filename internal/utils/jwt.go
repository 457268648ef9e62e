package utils // package utils provides helpers for issuing and verifying access tokens

import (
	"context"
	"errors"
	"time" // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and parsing signed tokens

	"github.com/iliyamo/raffle-checkout/internal/model"
)

// Roles carried in the "role" claim.
const (
	RoleBuyer = "BUYER"
	RoleAdmin = "ADMIN"
)

// ErrInvalidToken is returned for tokens that are malformed, expired, signed
// with the wrong key, or missing a subject.
var ErrInvalidToken = errors.New("invalid access token")

// AccessToken represents a signed JWT access token along with its expiry.
// The Token field contains the JWT string.  Exp stores the expiration
// timestamp as a time.Time.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Claims is the payload of an access token.  The subject is the user id
// assigned by the identity provider; name and phone are optional profile
// attributes.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// NewAccessToken builds and signs an HS256 JWT for an identity.  It is used
// by the token command and by tests; production tokens come from the
// identity provider and share the same secret.
func NewAccessToken(secret string, id model.Identity, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	role := id.Role
	if role == "" {
		role = RoleBuyer
	}
	claims := Claims{
		Name:  id.Name,
		Phone: id.Phone,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	// Create a new token object specifying the signing method (HS256) and
	// sign it with the provided secret.
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies raw against secret and returns its identity.
// Only HMAC signing methods are accepted.
func ParseAccessToken(secret, raw string) (*model.Identity, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}
	var claims Claims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		// Type assert the signing method to HMAC; reject others.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &model.Identity{
		UserID: claims.Subject,
		Name:   claims.Name,
		Phone:  claims.Phone,
		Role:   claims.Role,
	}, nil
}

// JWTVerifier resolves bearer tokens to identities using a shared secret.
type JWTVerifier struct {
	secret string
}

// NewJWTVerifier returns a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) *JWTVerifier { return &JWTVerifier{secret: secret} }

// VerifyToken implements the service identity provider.
func (v *JWTVerifier) VerifyToken(_ context.Context, token string) (*model.Identity, error) {
	return ParseAccessToken(v.secret, token)
}
