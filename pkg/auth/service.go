package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/storage"
)

// emailShape is a deliberately loose check; the authoritative validation is
// the confirmation the user can complete an OAuth linkage and receive mail.
var emailShape = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// ProviderLister reports which providers a user currently has linked. The
// session authority embeds the list into issued claims.
type ProviderLister interface {
	ConnectedProviders(ctx context.Context, userID string) []string
}

// BindingInvalidator evicts all cached provider bindings for a user.
// Implemented by the provider session cache.
type BindingInvalidator interface {
	InvalidateUser(userID string)
}

// Service implements registration and login on top of the user store and the
// session authority.
type Service struct {
	users     storage.UserStore
	sessions  *SessionAuthority
	providers ProviderLister
	bindings  BindingInvalidator
}

// NewService creates an auth service. The provider lister may be nil, in
// which case issued sessions carry an empty provider list. The binding
// invalidator may be nil when no session cache is wired (tests).
func NewService(users storage.UserStore, sessions *SessionAuthority, providers ProviderLister, bindings BindingInvalidator) *Service {
	return &Service{users: users, sessions: sessions, providers: providers, bindings: bindings}
}

// Register creates a new local user account.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (*storage.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailShape.MatchString(email) {
		return nil, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &storage.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    now,
		LastActive:   now,
		Active:       true,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	logger.Infow("Registered new user", "user_id", user.ID)
	return user, nil
}

// Login verifies the credentials and issues a session token. Failures are
// uniformly reported as ErrInvalidCredentials so callers cannot distinguish
// an unknown email from a wrong password.
func (s *Service) Login(ctx context.Context, email, password string) (*storage.User, string, time.Time, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Burn comparable time so the timing of the response does
			// not reveal whether the email exists.
			_ = CheckPassword("$2a$10$000000000000000000000uGyUvPeZQZGFCgbVO3nQdR3sCTyBPdPi", password)
			return nil, "", time.Time{}, ErrInvalidCredentials
		}
		return nil, "", time.Time{}, fmt.Errorf("looking up user: %w", err)
	}

	if !CheckPassword(user.PasswordHash, password) {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, "", time.Time{}, ErrUserInactive
	}

	bearer, expiresAt, err := s.sessions.Issue(user, s.connectedProviders(ctx, user.ID))
	if err != nil {
		return nil, "", time.Time{}, err
	}

	if err := s.users.TouchLastActive(ctx, user.ID); err != nil {
		logger.Warnw("Failed to update last_active on login", "user_id", user.ID, "error", err)
	}

	logger.Infow("User logged in", "user_id", user.ID)
	return user, bearer, expiresAt, nil
}

// Authenticate validates a bearer token and returns the associated user.
// Used by the MCP dispatch layer to gate tool calls.
func (s *Service) Authenticate(ctx context.Context, bearer string) (*storage.User, *Claims, error) {
	claims, err := s.sessions.Validate(bearer)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, fmt.Errorf("looking up user: %w", err)
	}
	if !user.Active {
		return nil, nil, ErrUserInactive
	}

	return user, claims, nil
}

// RefreshSession exchanges a valid-signature (possibly expired) bearer for a
// fresh one.
func (s *Service) RefreshSession(ctx context.Context, oldBearer string) (string, time.Time, error) {
	claims, err := s.sessions.ValidateSignatureOnly(oldBearer)
	if err != nil {
		return "", time.Time{}, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", time.Time{}, ErrInvalidToken
		}
		return "", time.Time{}, fmt.Errorf("looking up user: %w", err)
	}
	if !user.Active {
		return "", time.Time{}, ErrUserInactive
	}

	return s.sessions.Refresh(oldBearer, user, s.connectedProviders(ctx, user.ID))
}

// Deactivate soft-deactivates the account and evicts any cached provider
// bindings so in-flight adapters stop serving the user. Tokens stay in the
// vault; reactivation does not require relinking.
func (s *Service) Deactivate(ctx context.Context, userID string) error {
	if err := s.users.SetActive(ctx, userID, false); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("deactivating user: %w", err)
	}
	if s.bindings != nil {
		s.bindings.InvalidateUser(userID)
	}
	logger.Infow("Deactivated user", "user_id", userID)
	return nil
}

func (s *Service) connectedProviders(ctx context.Context, userID string) []string {
	if s.providers == nil {
		return nil
	}
	return s.providers.ConnectedProviders(ctx, userID)
}
