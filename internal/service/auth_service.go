package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"sarthi/gateway/internal/models"
	"sarthi/gateway/internal/repository"
	"sarthi/gateway/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLoginUnavailable   = errors.New("login backend not configured")
)

type AccountFinder interface {
	FindByUsername(ctx context.Context, username string) (models.Account, error)
}

// AuthService is the login collaborator: it checks credentials and reports
// the User record the session controller persists.
type AuthService struct {
	accounts AccountFinder
	log      zerolog.Logger
}

func NewAuthService(accounts AccountFinder, log zerolog.Logger) *AuthService {
	return &AuthService{
		accounts: accounts,
		log:      log,
	}
}

type LoginInput struct {
	Username string
	Password string
}

func (s *AuthService) Login(ctx context.Context, input LoginInput) (models.User, error) {
	if s.accounts == nil {
		return models.User{}, ErrLoginUnavailable
	}

	username := strings.TrimSpace(strings.ToLower(input.Username))
	if username == "" || input.Password == "" {
		return models.User{}, ErrInvalidCredentials
	}

	account, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}

	ok, err := security.VerifyPassword(input.Password, account.PasswordHash)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", account.ID).Msg("stored password hash unreadable")
		return models.User{}, ErrInvalidCredentials
	}
	if !ok {
		return models.User{}, ErrInvalidCredentials
	}

	return account.User, nil
}
