package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/cardledger/internal/logging"
)

const (
	maxUsernameLength = 50
	minPasswordLength = 8
)

// Service manages user accounts and credential checks.
type Service struct {
	repo   Repository
	logger *slog.Logger
	cost   int
}

// NewService creates a new identity service. logger may be nil.
func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logging.Component(logger, "identity"), cost: bcrypt.DefaultCost}
}

// CreateInput captures a new account. Empty Roles means USER.
type CreateInput struct {
	Username string
	Password string
	Roles    []string
}

// Create registers a user with a bcrypt-hashed password.
func (s *Service) Create(ctx context.Context, input CreateInput) (User, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || len(username) > maxUsernameLength {
		return User{}, fmt.Errorf("%w: username must be 1 to %d characters", ErrInvalidUser, maxUsernameLength)
	}
	if len(input.Password) < minPasswordLength {
		return User{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidUser, minPasswordLength)
	}
	roles, err := resolveRoles(input.Roles)
	if err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
		Roles:        roles,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			s.logger.Warn("user creation rejected", slog.String("username", username), slog.Any("error", err))
		}
		return User{}, err
	}

	s.logger.Info("user created", slog.String("user_id", user.ID), slog.String("username", username), slog.Any("roles", user.RoleNames()))
	return user, nil
}

// EnsureAdmin creates the bootstrap administrator unless the username is
// already taken.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	_, err := s.Create(ctx, CreateInput{Username: username, Password: password, Roles: []string{string(RoleAdmin), string(RoleUser)}})
	if errors.Is(err, ErrUserExists) {
		return nil
	}
	return err
}

// Authenticate verifies a username and password.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Get returns a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns every user.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Exists reports whether a user with id exists.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.repo.FindByID(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrUserNotFound):
		return false, nil
	default:
		return false, err
	}
}

func resolveRoles(names []string) ([]Role, error) {
	if len(names) == 0 {
		return []Role{RoleUser}, nil
	}
	seen := make(map[Role]bool, len(names))
	roles := make([]Role, 0, len(names))
	for _, n := range names {
		role := Role(strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(n), "ROLE_")))
		if role != RoleUser && role != RoleAdmin {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidUser, n)
		}
		if !seen[role] {
			seen[role] = true
			roles = append(roles, role)
		}
	}
	return roles, nil
}
