package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/config"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/oauth/state"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/storage"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/vault"
)

// exchangeTimeout bounds the code-for-token and refresh HTTP calls.
const exchangeTimeout = 10 * time.Second

var (
	// ErrUnsupportedProvider is returned for providers the gateway does not
	// know or has no credentials for.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrInvalidState is returned when the callback state fails validation.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrExchangeFailed is returned when the provider rejects the
	// code-for-token exchange.
	ErrExchangeFailed = errors.New("token exchange failed")

	// ErrNoRefreshToken is returned when a refresh is requested but the
	// stored record carries no refresh token.
	ErrNoRefreshToken = errors.New("no refresh token stored")

	// ErrUnknownUser is returned when a link flow is requested for a user
	// id the store does not know.
	ErrUnknownUser = errors.New("unknown user")
)

// BindingInvalidator evicts cached provider bindings when stored credentials
// change. Implemented by the provider session cache.
type BindingInvalidator interface {
	Invalidate(userID, provider string)
}

// LinkRequest is the result of BeginLink.
type LinkRequest struct {
	AuthorizationURL string
	State            string
	TTL              time.Duration
}

// LinkResult is the result of a completed code-for-token exchange.
type LinkResult struct {
	UserID    string
	Provider  string
	ExpiresAt time.Time
	Scope     string
}

// ProviderStatus reports one provider's connection state for a user.
type ProviderStatus struct {
	Provider  string     `json:"provider"`
	Connected bool       `json:"connected"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Scope     string     `json:"scope,omitempty"`
}

// Service implements the OAuth2 linkage flow.
type Service struct {
	providers   config.ProvidersConfig
	users       storage.UserStore
	vault       *vault.Vault
	states      state.Registry
	invalidator BindingInvalidator

	// httpClient overrides the HTTP client used for token exchange.
	// Nil means http.DefaultClient; tests point it at a stub server.
	httpClient *http.Client
}

// NewService creates the linkage service. The user store gates BeginLink to
// known users. The invalidator may be nil when no session cache is wired
// (tests).
func NewService(providers config.ProvidersConfig, users storage.UserStore, v *vault.Vault, states state.Registry, invalidator BindingInvalidator) *Service {
	return &Service{
		providers:   providers,
		users:       users,
		vault:       v,
		states:      states,
		invalidator: invalidator,
	}
}

// WithHTTPClient sets the HTTP client used for provider exchanges.
func (s *Service) WithHTTPClient(c *http.Client) *Service {
	s.httpClient = c
	return s
}

// BeginLink generates the provider authorization URL with a CSRF-protecting
// state of the form "user_id:nonce" and registers the state with a TTL.
func (s *Service) BeginLink(ctx context.Context, userID, provider string) (*LinkRequest, error) {
	cfg, err := oauthConfig(s.providers, provider)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownUser, userID)
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	st := fmt.Sprintf("%s:%s", userID, uuid.NewString())
	entry := &state.Entry{UserID: userID, Provider: provider, CreatedAt: time.Now()}
	if err := s.states.Store(ctx, st, entry, state.DefaultTTL); err != nil {
		return nil, fmt.Errorf("registering state: %w", err)
	}

	authURL := cfg.AuthCodeURL(st, oauth2.AccessTypeOffline)
	logger.Infow("Generated authorization URL", "user_id", userID, "provider", provider)

	return &LinkRequest{
		AuthorizationURL: authURL,
		State:            st,
		TTL:              state.DefaultTTL,
	}, nil
}

// CompleteLink validates the callback state, exchanges the authorization code
// for tokens, and stores them in the vault. On any exchange failure no
// partial credentials are stored.
func (s *Service) CompleteLink(ctx context.Context, code, st, provider string) (*LinkResult, error) {
	userID, err := s.consumeState(ctx, st, provider)
	if err != nil {
		return nil, err
	}

	cfg, err := oauthConfig(s.providers, provider)
	if err != nil {
		return nil, err
	}

	token, err := s.exchange(ctx, cfg, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	scope := tokenScope(token)
	record := &vault.TokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Scope:        scope,
	}
	if err := s.vault.Put(ctx, userID, provider, record); err != nil {
		return nil, err
	}

	if s.invalidator != nil {
		s.invalidator.Invalidate(userID, provider)
	}

	logger.Infow("Linked provider account", "user_id", userID, "provider", provider)
	return &LinkResult{
		UserID:    userID,
		Provider:  provider,
		ExpiresAt: token.Expiry,
		Scope:     scope,
	}, nil
}

// consumeState parses and validates the callback state. The state must parse
// as "user_id:nonce", must have been issued by BeginLink for the same user
// and provider, and must not be expired or previously consumed.
func (s *Service) consumeState(ctx context.Context, st, provider string) (string, error) {
	parts := strings.SplitN(st, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("%w: malformed state", ErrInvalidState)
	}
	userID := parts[0]

	entry, err := s.states.Consume(ctx, st)
	if err != nil {
		return "", fmt.Errorf("%w: state not issued or expired", ErrInvalidState)
	}
	if entry.UserID != userID || entry.Provider != provider {
		return "", fmt.Errorf("%w: state does not match request", ErrInvalidState)
	}

	return userID, nil
}

// ConnectionStatus reports the presence of a stored token for each known
// provider.
func (s *Service) ConnectionStatus(ctx context.Context, userID string) []ProviderStatus {
	statuses := make([]ProviderStatus, 0, len(KnownProviders))
	for _, provider := range KnownProviders {
		status := ProviderStatus{Provider: provider}
		record, err := s.vault.Get(ctx, userID, provider)
		if err == nil {
			expiresAt := record.ExpiresAt
			status.Connected = true
			status.ExpiresAt = &expiresAt
			status.Scope = record.Scope
		} else if !errors.Is(err, vault.ErrNoToken) {
			logger.Warnw("Failed to read token for status", "user_id", userID, "provider", provider, "error", err)
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// ConnectedProviders returns the names of providers with stored tokens.
// Implements the auth.ProviderLister interface used at session issue time.
func (s *Service) ConnectedProviders(ctx context.Context, userID string) []string {
	var connected []string
	for _, status := range s.ConnectionStatus(ctx, userID) {
		if status.Connected {
			connected = append(connected, status.Provider)
		}
	}
	return connected
}

// Disconnect clears the stored token and evicts the cached binding.
// Idempotent: disconnecting an unlinked provider is not an error.
func (s *Service) Disconnect(ctx context.Context, userID, provider string) error {
	if err := s.vault.Clear(ctx, userID, provider); err != nil {
		return err
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(userID, provider)
	}
	logger.Infow("Disconnected provider", "user_id", userID, "provider", provider)
	return nil
}

// Refresh uses the stored refresh token to obtain a new access/refresh pair
// and overwrites the stored record atomically. The cached binding is evicted
// so the next call re-binds with fresh credentials.
func (s *Service) Refresh(ctx context.Context, userID, provider string) (*vault.TokenRecord, error) {
	record, err := s.vault.Get(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	if record.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	cfg, err := oauthConfig(s.providers, provider)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(s.exchangeContext(ctx), exchangeTimeout)
	defer cancel()

	token, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: record.RefreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	refreshed := &vault.TokenRecord{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
		Scope:        record.Scope,
	}
	// Some providers omit the refresh token when it has not rotated.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = record.RefreshToken
	}

	if err := s.vault.Put(ctx, userID, provider, refreshed); err != nil {
		return nil, err
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(userID, provider)
	}

	logger.Infow("Refreshed provider token", "user_id", userID, "provider", provider)
	return refreshed, nil
}

func (s *Service) exchange(ctx context.Context, cfg *oauth2.Config, code string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(s.exchangeContext(ctx), exchangeTimeout)
	defer cancel()
	return cfg.Exchange(ctx, code)
}

// exchangeContext injects the override HTTP client into the context the
// oauth2 package reads it from.
func (s *Service) exchangeContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func tokenScope(token *oauth2.Token) string {
	if scope, ok := token.Extra("scope").(string); ok {
		return scope
	}
	return ""
}
