package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/auth"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/enrichment"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/intelligence"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/logger"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/oauth"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/providers"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/storage"
	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/vault"
)

// protocolVersion is the MCP protocol revision advertised by initialize.
const protocolVersion = "2024-11-05"

const serverName = "pierre-mcp-server"

// intelligenceScanLimit bounds how many recent activities are fetched when
// resolving an activity for analysis and building its baseline.
const intelligenceScanLimit = 100

// Handler dispatches decoded JSON-RPC requests to tool implementations. One
// Handler serves all connections.
type Handler struct {
	version  string
	sessions *auth.Service
	users    storage.UserStore
	linker   *oauth.Service
	adapters *providers.SessionCache
	analyzer *intelligence.Analyzer
	enricher *enrichment.Service
	tools    *toolSet
}

// NewHandler wires the dispatch layer. The enricher may be nil to disable
// weather and location context.
func NewHandler(version string, sessions *auth.Service, users storage.UserStore,
	linker *oauth.Service, adapters *providers.SessionCache,
	enricher *enrichment.Service) (*Handler, error) {
	tools, err := newToolSet()
	if err != nil {
		return nil, err
	}
	return &Handler{
		version:  version,
		sessions: sessions,
		users:    users,
		linker:   linker,
		adapters: adapters,
		analyzer: &intelligence.Analyzer{},
		enricher: enricher,
		tools:    tools,
	}, nil
}

// Handle processes one request and returns the response to write back.
func (h *Handler) Handle(ctx context.Context, req *Request) *Response {
	if req.JSONRPC != "2.0" {
		return NewError(req.ID, CodeInvalidRequest, "Unsupported JSON-RPC version")
	}

	switch req.Method {
	case "initialize":
		return h.handleInitialize(req)
	case "authenticate":
		return h.handleAuthenticate(ctx, req)
	case "tools/call":
		return h.handleToolCall(ctx, req)
	default:
		return NewError(req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (h *Handler) handleInitialize(req *Request) *Response {
	return NewResult(req.ID, map[string]any{
		"protocolVersion": protocolVersion,
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": h.version,
		},
		"capabilities": map[string]any{
			"tools": h.tools.catalog,
		},
	})
}

func (h *Handler) handleAuthenticate(ctx context.Context, req *Request) *Response {
	var params struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Token == "" {
		return NewError(req.ID, CodeInvalidParams, "authenticate requires a token parameter")
	}

	user, _, err := h.sessions.Authenticate(ctx, params.Token)
	if err != nil {
		return NewResult(req.ID, map[string]any{
			"authenticated":       false,
			"available_providers": []string{},
			"error":               "Invalid or expired session token",
		})
	}

	return NewResult(req.ID, map[string]any{
		"authenticated":       true,
		"user_id":             user.ID,
		"available_providers": h.linker.ConnectedProviders(ctx, user.ID),
	})
}

// toolCallParams is the params shape of tools/call.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (h *Handler) handleToolCall(ctx context.Context, req *Request) *Response {
	bearer, ok := strings.CutPrefix(req.Auth, "Bearer ")
	if !ok || bearer == "" {
		return NewError(req.ID, CodeUnauthorized, "Authentication required")
	}

	user, _, err := h.sessions.Authenticate(ctx, bearer)
	if err != nil {
		return NewError(req.ID, CodeUnauthorized, "Authentication required")
	}
	if err := h.users.TouchLastActive(ctx, user.ID); err != nil {
		logger.Warnw("Failed to touch last_active", "user_id", user.ID, "error", err)
	}

	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return NewError(req.ID, CodeInvalidParams, "tools/call requires a tool name")
	}

	if _, known := h.tools.schemas[params.Name]; !known {
		return NewError(req.ID, CodeMethodNotFound, fmt.Sprintf("Unknown tool: %s", params.Name))
	}
	if err := h.tools.validate(params.Name, params.Arguments); err != nil {
		return NewError(req.ID, CodeInvalidParams, err.Error())
	}

	result, err := h.dispatch(ctx, user, params.Name, params.Arguments)
	if err != nil {
		return toolError(req.ID, err)
	}
	return NewResult(req.ID, result)
}

// toolArguments is the superset of every tool's arguments.
type toolArguments struct {
	Provider   string `json:"provider"`
	Limit      int    `json:"limit"`
	Offset     int    `json:"offset"`
	ActivityID string `json:"activity_id"`
}

func (h *Handler) dispatch(ctx context.Context, user *storage.User, name string, rawArgs json.RawMessage) (any, error) {
	var args toolArguments
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return nil, fmt.Errorf("decoding arguments: %w", err)
		}
	}

	switch name {
	case "get_activities":
		if args.Limit <= 0 {
			args.Limit = 30
		}
		adapter, err := h.adapters.Get(ctx, user.ID, args.Provider)
		if err != nil {
			return nil, err
		}
		activities, err := adapter.GetActivities(ctx, args.Limit, args.Offset)
		if err != nil {
			return nil, err
		}
		return map[string]any{"activities": activities}, nil

	case "get_athlete":
		adapter, err := h.adapters.Get(ctx, user.ID, args.Provider)
		if err != nil {
			return nil, err
		}
		return adapter.GetAthlete(ctx)

	case "get_stats":
		adapter, err := h.adapters.Get(ctx, user.ID, args.Provider)
		if err != nil {
			return nil, err
		}
		return adapter.GetStats(ctx)

	case "get_activity_intelligence":
		return h.analyzeActivity(ctx, user.ID, args.Provider, args.ActivityID)

	case "connect_strava":
		return h.beginLink(ctx, user.ID, oauth.ProviderStrava)
	case "connect_fitbit":
		return h.beginLink(ctx, user.ID, oauth.ProviderFitbit)

	case "get_connection_status":
		return h.linker.ConnectionStatus(ctx, user.ID), nil

	case "disconnect_provider":
		if err := h.linker.Disconnect(ctx, user.ID, args.Provider); err != nil {
			return nil, err
		}
		return map[string]any{"provider": args.Provider, "status": "disconnected"}, nil

	default:
		// Unreachable: the tool name was checked against the catalog.
		return nil, fmt.Errorf("unknown tool %q", name)
	}
}

func (h *Handler) beginLink(ctx context.Context, userID, provider string) (any, error) {
	link, err := h.linker.BeginLink(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"authorization_url":  link.AuthorizationURL,
		"state":              link.State,
		"instructions":       fmt.Sprintf("Visit the URL to authorize %s access, then you will be redirected back.", provider),
		"expires_in_minutes": int(link.TTL.Minutes()),
	}, nil
}

// analyzeActivity locates the activity in the user's recent history, enriches
// it with weather and location context, and runs the analyzer. The rest of
// the scanned history forms the personal-record baseline.
func (h *Handler) analyzeActivity(ctx context.Context, userID, provider, activityID string) (any, error) {
	adapter, err := h.adapters.Get(ctx, userID, provider)
	if err != nil {
		return nil, err
	}

	activities, err := adapter.GetActivities(ctx, intelligenceScanLimit, 0)
	if err != nil {
		return nil, err
	}

	var target *providers.Activity
	baseline := &intelligence.Baseline{}
	for i := range activities {
		if activities[i].ID == activityID {
			target = &activities[i]
			continue
		}
		accumulateBaseline(baseline, &activities[i])
	}
	if target == nil {
		return nil, fmt.Errorf("activity %q not found in recent history", activityID)
	}

	analysisCtx := &intelligence.Context{Baseline: baseline}
	if h.enricher != nil {
		analysisCtx = h.enricher.Enrich(ctx, target)
		analysisCtx.Baseline = baseline
	}

	analysis := h.analyzer.Analyze(target, analysisCtx)
	return map[string]any{
		"activity":     target,
		"intelligence": analysis,
	}, nil
}

func accumulateBaseline(baseline *intelligence.Baseline, activity *providers.Activity) {
	if activity.DistanceMeters != nil && *activity.DistanceMeters > baseline.LongestDistanceMeters {
		baseline.LongestDistanceMeters = *activity.DistanceMeters
	}
	if activity.AvgSpeed != nil && *activity.AvgSpeed > baseline.BestAvgSpeedMps {
		baseline.BestAvgSpeedMps = *activity.AvgSpeed
	}
	if activity.DurationSeconds > baseline.LongestDurationSeconds {
		baseline.LongestDurationSeconds = activity.DurationSeconds
	}
	if activity.ElevationGain != nil && *activity.ElevationGain > baseline.MostElevationGain {
		baseline.MostElevationGain = *activity.ElevationGain
	}
}

// toolError maps tool failures onto JSON-RPC error codes.
func toolError(id json.RawMessage, err error) *Response {
	switch {
	case errors.Is(err, vault.ErrNoToken), errors.Is(err, storage.ErrNotFound):
		return NewError(id, CodeInternalError, "No valid token for this provider; connect it first")
	case errors.Is(err, oauth.ErrUnsupportedProvider):
		return NewError(id, CodeInvalidParams, err.Error())
	case errors.Is(err, providers.ErrUnauthorized):
		return NewError(id, CodeInternalError, "Provider rejected the stored credentials")
	default:
		return NewError(id, CodeInternalError, err.Error())
	}
}
