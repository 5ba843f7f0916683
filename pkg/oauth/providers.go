// Package oauth implements the linkage flow binding third-party provider
// accounts to local users: authorization URL generation with CSRF state,
// callback handling, the code-for-token exchange, and refresh.
package oauth

import (
	"fmt"

	"golang.org/x/oauth2"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/config"
)

// Provider names recognized by the linkage service.
const (
	ProviderStrava = "strava"
	ProviderFitbit = "fitbit"
)

// KnownProviders lists every provider the gateway can link, in the order they
// are reported by connection status.
var KnownProviders = []string{ProviderStrava, ProviderFitbit}

var stravaEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.strava.com/oauth/authorize",
	TokenURL: "https://www.strava.com/oauth/token",
}

var fitbitEndpoint = oauth2.Endpoint{
	AuthURL:  "https://www.fitbit.com/oauth2/authorize",
	TokenURL: "https://api.fitbit.com/oauth2/token",
}

var providerScopes = map[string][]string{
	ProviderStrava: {"read", "activity:read_all"},
	ProviderFitbit: {"activity", "profile", "heartrate", "location"},
}

// oauthConfig builds the x/oauth2 configuration for one provider from the
// gateway configuration.
func oauthConfig(providers config.ProvidersConfig, provider string) (*oauth2.Config, error) {
	var (
		pc       config.ProviderConfig
		endpoint oauth2.Endpoint
	)
	switch provider {
	case ProviderStrava:
		pc, endpoint = providers.Strava, stravaEndpoint
	case ProviderFitbit:
		pc, endpoint = providers.Fitbit, fitbitEndpoint
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}

	if !pc.Configured() {
		return nil, fmt.Errorf("%w: %s has no client credentials configured", ErrUnsupportedProvider, provider)
	}

	return &oauth2.Config{
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		RedirectURL:  pc.RedirectURI,
		Endpoint:     endpoint,
		Scopes:       providerScopes[provider],
	}, nil
}
