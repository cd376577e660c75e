package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/trophydeck/trophydeck-server/internal/settings"
)

func (s *Server) registerSettingsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getSettings",
		Method:      http.MethodGet,
		Path:        "/api/v1/settings",
		Summary:     "Get settings",
		Description: "Returns the configured user and whether an API key is present; the key itself is never echoed",
		Tags:        []string{"Settings"},
	}, s.handleGetSettings)

	huma.Register(s.api, huma.Operation{
		OperationID: "saveSettings",
		Method:      http.MethodPut,
		Path:        "/api/v1/settings",
		Summary:     "Save settings",
		Description: "Persists new Steam credentials and invalidates the cached aggregate",
		Tags:        []string{"Settings"},
	}, s.handleSaveSettings)
}

// SettingsResponse describes the current credential state.
type SettingsResponse struct {
	UserID        string `json:"user_id" doc:"Configured SteamID64, empty when unset"`
	KeyConfigured bool   `json:"key_configured" doc:"Whether an API key is stored"`
}

// SettingsOutput wraps the settings response for Huma.
type SettingsOutput struct {
	Body SettingsResponse
}

// SaveSettingsRequest is the request body for saving credentials.
type SaveSettingsRequest struct {
	APIKey string `json:"api_key" doc:"Steam Web API key (32 hex characters)"`
	UserID string `json:"user_id" doc:"SteamID64 (17 digits)"`
}

// SaveSettingsInput wraps the save request for Huma.
type SaveSettingsInput struct {
	Body SaveSettingsRequest
}

func (s *Server) handleGetSettings(_ context.Context, _ *struct{}) (*SettingsOutput, error) {
	current := s.services.Settings.Get()
	return &SettingsOutput{Body: SettingsResponse{
		UserID:        current.UserID,
		KeyConfigured: current.APIKey != "",
	}}, nil
}

func (s *Server) handleSaveSettings(_ context.Context, input *SaveSettingsInput) (*SettingsOutput, error) {
	// Field constraints live on the settings document; Save validates and
	// broadcasts to the client and aggregator.
	if err := s.services.Settings.Save(settings.Settings{
		APIKey: input.Body.APIKey,
		UserID: input.Body.UserID,
	}); err != nil {
		return nil, err
	}

	current := s.services.Settings.Get()
	return &SettingsOutput{Body: SettingsResponse{
		UserID:        current.UserID,
		KeyConfigured: current.APIKey != "",
	}}, nil
}
