package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/storage"
)

const sessionIssuer = "pierre-mcp-server"

// Claims are the session claims embedded in every issued bearer token.
type Claims struct {
	Email     string   `json:"email"`
	Providers []string `json:"providers,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject of the session.
func (c *Claims) UserID() string {
	return c.Subject
}

// SessionAuthority mints and validates bearer session tokens. The signing
// secret is a process-wide value injected once at startup.
type SessionAuthority struct {
	secret []byte
	expiry time.Duration
}

// NewSessionAuthority creates a SessionAuthority with the given signing
// secret and token lifetime.
func NewSessionAuthority(secret []byte, expiry time.Duration) (*SessionAuthority, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret cannot be empty")
	}
	if expiry <= 0 {
		return nil, fmt.Errorf("session expiry must be positive, got %s", expiry)
	}
	return &SessionAuthority{secret: secret, expiry: expiry}, nil
}

// Issue mints a bearer token for the user. The providers list captures the
// provider connections available at issue time. Each token carries a unique
// jti so two tokens issued within the same second still differ.
func (a *SessionAuthority) Issue(user *storage.User, providers []string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(a.expiry)

	claims := &Claims{
		Email:     user.Email,
		Providers: providers,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    sessionIssuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	bearer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing session token: %w", err)
	}

	return bearer, expiresAt, nil
}

// Validate checks the token signature and expiry and returns its claims.
func (a *SessionAuthority) Validate(bearer string) (*Claims, error) {
	return a.parse(bearer, false)
}

// ValidateSignatureOnly checks only the signature, accepting expired tokens.
// It exists as a named operation, distinct from Validate, so that callers
// choosing to skip the expiry check do so explicitly. Used for refresh and
// for diagnostic extraction of the user id from expired tokens.
func (a *SessionAuthority) ValidateSignatureOnly(bearer string) (*Claims, error) {
	return a.parse(bearer, true)
}

// Refresh issues a new bearer for the user, provided the old token's
// signature is intact. The old token may be expired.
func (a *SessionAuthority) Refresh(oldBearer string, user *storage.User, providers []string) (string, time.Time, error) {
	claims, err := a.ValidateSignatureOnly(oldBearer)
	if err != nil {
		return "", time.Time{}, err
	}
	if claims.UserID() != user.ID {
		return "", time.Time{}, ErrInvalidToken
	}
	return a.Issue(user, providers)
}

func (a *SessionAuthority) parse(bearer string, skipExpiry bool) (*Claims, error) {
	if bearer == "" {
		return nil, ErrNoToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if skipExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(bearer, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
