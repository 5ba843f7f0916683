package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/pgrlq7/pierre-mcp-server-sub000/pkg/oauth"
)

// Tool describes one callable tool in the catalog returned by initialize.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// providerProperty is the schema fragment shared by every provider-targeting
// tool.
func providerProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Fitness data provider to query",
		"enum":        oauth.KnownProviders,
	}
}

func toolCatalog() []Tool {
	return []Tool{
		{
			Name:        "get_activities",
			Description: "Fetch recent activities from a connected fitness provider",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"provider": providerProperty(),
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of activities to return",
						"minimum":     1,
					},
					"offset": map[string]any{
						"type":        "integer",
						"description": "Number of most-recent activities to skip",
						"minimum":     0,
					},
				},
				"required": []string{"provider"},
			},
		},
		{
			Name:        "get_athlete",
			Description: "Fetch the athlete profile from a connected fitness provider",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"provider": providerProperty(),
				},
				"required": []string{"provider"},
			},
		},
		{
			Name:        "get_stats",
			Description: "Fetch aggregate activity statistics from a connected fitness provider",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"provider": providerProperty(),
				},
				"required": []string{"provider"},
			},
		},
		{
			Name:        "get_activity_intelligence",
			Description: "Analyze one activity: effort, heart-rate zones, records and a narrative summary",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"provider": providerProperty(),
					"activity_id": map[string]any{
						"type":        "string",
						"description": "Provider-assigned id of the activity to analyze",
					},
				},
				"required": []string{"provider", "activity_id"},
			},
		},
		{
			Name:        "connect_strava",
			Description: "Begin linking a Strava account; returns the authorization URL to visit",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "connect_fitbit",
			Description: "Begin linking a Fitbit account; returns the authorization URL to visit",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "get_connection_status",
			Description: "Report which fitness providers are linked for the current user",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "disconnect_provider",
			Description: "Unlink a fitness provider and discard its stored credentials",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"provider": providerProperty(),
				},
				"required": []string{"provider"},
			},
		},
	}
}

// toolSet holds the catalog plus compiled input schemas for validation.
type toolSet struct {
	catalog []Tool
	schemas map[string]*gojsonschema.Schema
}

func newToolSet() (*toolSet, error) {
	catalog := toolCatalog()
	schemas := make(map[string]*gojsonschema.Schema, len(catalog))
	for _, tool := range catalog {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(tool.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("compiling schema for %s: %w", tool.Name, err)
		}
		schemas[tool.Name] = schema
	}
	return &toolSet{catalog: catalog, schemas: schemas}, nil
}

// validate checks tool arguments against the tool's input schema and returns
// a human-readable description of the violations.
func (t *toolSet) validate(name string, arguments json.RawMessage) error {
	schema, ok := t.schemas[name]
	if !ok {
		return fmt.Errorf("unknown tool %q", name)
	}
	if len(arguments) == 0 {
		arguments = json.RawMessage("{}")
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(arguments))
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(problems, "; "))
}
