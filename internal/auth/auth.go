package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/fieldsales-recruit/internal/errors"
)

// Claims identify an authenticated enterprise user.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 bearer tokens.
type Tokens struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{Secret: []byte(secret), TTL: ttl, Now: time.Now}
}

func (t *Tokens) Issue(userID string) (string, error) {
	now := t.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.TTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
	return signed, errors.Wrap(err, "sign token")
}

// Parse returns the user id carried by token. Any defect in the token is
// reported as ErrUnauthorized.
func (t *Tokens) Parse(token string) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.Now),
	)
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return "", appErrors.ErrUnauthorized
	}
	return claims.UserID, nil
}

type ctxKey struct{}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated user id stored by the auth middleware.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
