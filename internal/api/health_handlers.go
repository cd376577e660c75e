package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status",
		Tags:        []string{"Health"},
	}, s.handleHealthCheck)
}

// HealthResponse contains health check data in API responses.
type HealthResponse struct {
	Status     string `json:"status" doc:"Overall status"`
	Configured bool   `json:"configured" doc:"Whether Steam credentials are configured"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	configured := false
	if s.services != nil && s.services.Settings != nil {
		configured = s.services.Settings.Get().Configured()
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:     "healthy",
			Configured: configured,
		},
	}, nil
}
