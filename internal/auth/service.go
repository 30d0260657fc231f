package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/congo-pay/cardledger/internal/config"
	"github.com/congo-pay/cardledger/internal/identity"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Roles  []string
}

// Service issues and verifies JWT access and refresh tokens.
type Service struct {
	idRepo  identity.Repository
	access  signer
	refresh signer
	now     func() time.Time
}

// NewService builds the token service from configuration.
func NewService(cfg config.Config, idRepo identity.Repository) *Service {
	return &Service{
		idRepo:  idRepo,
		access:  signer{secret: []byte(cfg.JWTSecret), ttl: cfg.AccessTokenTTL, kind: kindAccess},
		refresh: signer{secret: []byte(cfg.RefreshSecret), ttl: cfg.RefreshTokenTTL, kind: kindRefresh},
		now:     time.Now,
	}
}

// Login issues a token pair for an already authenticated user.
func (s *Service) Login(user identity.User) (TokenPair, error) {
	now := s.now()
	access, accessExp, err := s.access.sign(user, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.refresh.sign(user, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(accessExp.Sub(now).Seconds())}, nil
}

// Refresh verifies the refresh token and returns a new access token. Roles
// are re-read so a role change takes effect on the next refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := s.refresh.parse(refreshToken, s.now())
	if err != nil {
		return "", 0, err
	}
	user, err := s.current(ctx, claims)
	if err != nil {
		return "", 0, err
	}
	now := s.now()
	signed, exp, err := s.access.sign(user, now)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(exp.Sub(now).Seconds()), nil
}

// Verify checks an access token and returns its principal.
func (s *Service) Verify(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.access.parse(accessToken, s.now())
	if err != nil {
		return Principal{}, err
	}
	user, err := s.current(ctx, claims)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: user.ID, Roles: user.RoleNames()}, nil
}

// Logout increments the token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, userID string) error {
	user, err := s.idRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	return s.idRepo.UpdateTokenVersion(ctx, user.ID, user.TokenVersion+1)
}

func (s *Service) current(ctx context.Context, claims Claims) (identity.User, error) {
	user, err := s.idRepo.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return identity.User{}, fmt.Errorf("%w: unknown subject", ErrInvalidToken)
		}
		return identity.User{}, err
	}
	if user.TokenVersion != claims.Version {
		return identity.User{}, fmt.Errorf("%w: token version invalidated", ErrInvalidToken)
	}
	return user, nil
}
