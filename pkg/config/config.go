// Package config contains the definition of the gateway configuration and the
// logic required to load it from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Default ports and expiry used when the environment does not override them.
const (
	DefaultMCPPort     = 8080
	DefaultHTTPPort    = 8081
	DefaultJWTExpiry   = 24 * time.Hour
	DefaultDatabaseURL = "pierre.db"
)

// Config represents the configuration of the gateway process.
type Config struct {
	// MCPPort is the TCP port the MCP JSON-RPC server listens on.
	MCPPort int

	// HTTPPort is the port for the auth/OAuth HTTP surface.
	HTTPPort int

	// DatabaseURL is the SQLite DSN for persistent state.
	DatabaseURL string

	// EncryptionKeyPath is the file holding the 32-byte token encryption key.
	EncryptionKeyPath string

	// JWTSecretPath is the file holding the session signing secret.
	JWTSecretPath string

	// JWTExpiry is the lifetime of issued session tokens.
	JWTExpiry time.Duration

	// Providers holds OAuth2 client configuration per provider.
	Providers ProvidersConfig

	// RedisURL, when set, selects the Redis-backed OAuth state registry
	// for multi-process deployments. Empty means in-memory.
	RedisURL string
}

// ProvidersConfig groups the per-provider OAuth2 application credentials.
type ProvidersConfig struct {
	Strava ProviderConfig
	Fitbit ProviderConfig
}

// ProviderConfig holds the OAuth2 application credentials for one provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Configured reports whether the provider has application credentials set.
func (p ProviderConfig) Configured() bool {
	return p.ClientID != "" && p.ClientSecret != ""
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("MCP_PORT", DefaultMCPPort)
	v.SetDefault("HTTP_PORT", DefaultHTTPPort)
	v.SetDefault("DATABASE_URL", DefaultDatabaseURL)
	v.SetDefault("ENCRYPTION_KEY_PATH", "data/encryption.key")
	v.SetDefault("JWT_SECRET_PATH", "data/jwt.secret")
	v.SetDefault("JWT_EXPIRY_HOURS", 24)

	cfg := &Config{
		MCPPort:           v.GetInt("MCP_PORT"),
		HTTPPort:          v.GetInt("HTTP_PORT"),
		DatabaseURL:       v.GetString("DATABASE_URL"),
		EncryptionKeyPath: v.GetString("ENCRYPTION_KEY_PATH"),
		JWTSecretPath:     v.GetString("JWT_SECRET_PATH"),
		JWTExpiry:         time.Duration(v.GetInt("JWT_EXPIRY_HOURS")) * time.Hour,
		RedisURL:          v.GetString("REDIS_URL"),
		Providers: ProvidersConfig{
			Strava: ProviderConfig{
				ClientID:     v.GetString("STRAVA_CLIENT_ID"),
				ClientSecret: v.GetString("STRAVA_CLIENT_SECRET"),
				RedirectURI:  v.GetString("STRAVA_REDIRECT_URI"),
			},
			Fitbit: ProviderConfig{
				ClientID:     v.GetString("FITBIT_CLIENT_ID"),
				ClientSecret: v.GetString("FITBIT_CLIENT_SECRET"),
				RedirectURI:  v.GetString("FITBIT_REDIRECT_URI"),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values that would fail at runtime.
func (c *Config) Validate() error {
	if c.MCPPort <= 0 || c.MCPPort > 65535 {
		return fmt.Errorf("invalid MCP port: %d", c.MCPPort)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.MCPPort == c.HTTPPort {
		return fmt.Errorf("MCP and HTTP ports must differ, both are %d", c.MCPPort)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database URL cannot be empty")
	}
	if c.JWTExpiry <= 0 {
		return fmt.Errorf("JWT expiry must be positive, got %s", c.JWTExpiry)
	}
	return nil
}
