package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotImplemented is returned by adapters for capabilities their
	// backend does not yet support. Adapters fail fast rather than
	// returning fabricated data.
	ErrNotImplemented = errors.New("not implemented by this provider")

	// ErrUnauthorized is returned when the provider rejects the current
	// access token. The adapter attempts one refresh-and-retry before
	// surfacing it.
	ErrUnauthorized = errors.New("provider rejected credentials")

	// ErrNotAuthenticated is returned when an adapter is used before
	// Authenticate succeeded.
	ErrNotAuthenticated = errors.New("adapter is not authenticated")

	// ErrUnknownProvider is returned by the factory for unregistered names.
	ErrUnknownProvider = errors.New("unknown provider")
)

// Credentials bind an adapter to a user's OAuth2 tokens plus the
// application-level client credentials.
type Credentials struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// RefreshFunc obtains fresh credentials when the provider reports the access
// token is no longer valid. Wired by the session cache to the OAuth linkage
// service. May be nil, in which case 401s surface immediately.
type RefreshFunc func(ctx context.Context) (Credentials, error)

// Provider is the capability set every third-party adapter implements.
// Adapters are stateless apart from the credentials they hold and must be
// safe for concurrent calls on behalf of the same user.
type Provider interface {
	// Name returns the provider's registry name ("strava", "fitbit").
	Name() string

	// Authenticate binds the adapter to a set of OAuth2 credentials.
	Authenticate(ctx context.Context, creds Credentials) error

	// GetAthlete fetches the athlete profile.
	GetAthlete(ctx context.Context) (*Athlete, error)

	// GetActivities fetches up to limit activities starting at offset,
	// mapped into the provider's native pagination idiom.
	GetActivities(ctx context.Context, limit, offset int) ([]Activity, error)

	// GetStats fetches aggregate statistics, either from a provider
	// aggregate endpoint or derived from a bounded scan of recent
	// activities.
	GetStats(ctx context.Context) (*Stats, error)
}

// Factory constructs an unbound adapter for a provider name.
type Factory func(refresh RefreshFunc) Provider

var factories = map[string]Factory{}

// Register adds a provider factory to the registry. Called from adapter
// package init functions.
func Register(name string, factory Factory) {
	factories[name] = factory
}

// New constructs an unbound adapter for the named provider.
func New(name string, refresh RefreshFunc) (Provider, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return factory(refresh), nil
}

// Names returns the registered provider names.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
