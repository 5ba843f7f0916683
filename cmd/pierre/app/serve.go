package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/api"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/auth"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/config"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/enrichment"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/mcp"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/oauth"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/oauth/state"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/providers"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/storage/sqlite"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/vault"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/versions"

	// Register provider adapters.
	_ "github.com/pgrlq7/pierre-mcp-server-sub000/pkg/providers/fitbit"
	_ "github.com/pgrlq7/pierre-mcp-server-sub000/pkg/providers/strava"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP and HTTP servers",
	Long: `Start the gateway: the MCP JSON-RPC server on the MCP port and the
auth/OAuth HTTP surface on the HTTP port. Configuration is read from the
environment.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func serve(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	encryptionKey, err := cfg.LoadEncryptionKey()
	if err != nil {
		return fmt.Errorf("loading encryption key: %w", err)
	}
	jwtSecret, err := cfg.LoadJWTSecret()
	if err != nil {
		return fmt.Errorf("loading JWT secret: %w", err)
	}

	db, err := sqlite.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warnf("Failed to close database: %v", err)
		}
	}()

	users := sqlite.NewUserStore(db)
	tokens := sqlite.NewTokenStore(db)

	tokenVault, err := vault.New(tokens, encryptionKey)
	if err != nil {
		return fmt.Errorf("initializing token vault: %w", err)
	}

	states, err := newStateRegistry(cfg)
	if err != nil {
		return fmt.Errorf("initializing state registry: %w", err)
	}

	adapters := providers.NewSessionCache(tokenVault, nil)
	linker := oauth.NewService(cfg.Providers, users, tokenVault, states, adapters)
	adapters.SetRefresher(linker)

	authority, err := auth.NewSessionAuthority(jwtSecret, cfg.JWTExpiry)
	if err != nil {
		return fmt.Errorf("initializing session authority: %w", err)
	}
	sessions := auth.NewService(users, authority, linker, adapters)

	version := versions.GetVersionInfo().Version
	handler, err := mcp.NewHandler(version, sessions, users, linker, adapters, enrichment.NewService())
	if err != nil {
		return fmt.Errorf("initializing MCP handler: %w", err)
	}

	mcpServer := mcp.NewServer(fmt.Sprintf(":%d", cfg.MCPPort), handler)
	httpRouter := api.NewRouter(sessions, linker, db.DB())

	logger.Infow("Starting Pierre gateway",
		"version", version, "mcp_port", cfg.MCPPort, "http_port", cfg.HTTPPort)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return mcpServer.Serve(ctx)
	})
	group.Go(func() error {
		return api.Serve(ctx, fmt.Sprintf(":%d", cfg.HTTPPort), httpRouter)
	})

	return group.Wait()
}

// newStateRegistry selects the OAuth state registry backend: Redis when
// configured, in-memory otherwise.
func newStateRegistry(cfg *config.Config) (state.Registry, error) {
	if cfg.RedisURL != "" {
		return state.NewRedisRegistry(cfg.RedisURL)
	}
	return state.NewMemoryRegistry(), nil
}
