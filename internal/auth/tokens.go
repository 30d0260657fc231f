package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/congo-pay/cardledger/internal/identity"
)

// ErrInvalidToken covers malformed, expired, mis-signed and revoked tokens.
var ErrInvalidToken = errors.New("invalid token")

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
	issuer      = "cardledger"
)

// Claims are carried by both token kinds. Version must match the user's
// current token version for the token to be accepted.
type Claims struct {
	Roles   []string `json:"roles"`
	Version int      `json:"ver"`
	Kind    string   `json:"kind"`
	jwt.RegisteredClaims
}

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type signer struct {
	secret []byte
	ttl    time.Duration
	kind   string
}

func (s signer) sign(user identity.User, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.ttl)
	claims := Claims{
		Roles:   user.RoleNames(),
		Version: user.TokenVersion,
		Kind:    s.kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", s.kind, err)
	}
	return signed, exp, nil
}

func (s signer) parse(token string, now time.Time) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Kind != s.kind || claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: expected %s token", ErrInvalidToken, s.kind)
	}
	return claims, nil
}
