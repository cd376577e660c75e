package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/trophydeck/trophydeck-server/internal/domain"
)

func (s *Server) registerProgressRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getOverallProgress",
		Method:      http.MethodGet,
		Path:        "/api/v1/progress",
		Summary:     "Get overall progress",
		Description: "Returns the library-wide achievement aggregate, recomputing when the cached one is stale",
		Tags:        []string{"Progress"},
	}, s.handleGetOverallProgress)
}

// GetProgressInput contains parameters for the aggregate lookup.
type GetProgressInput struct {
	Force bool `query:"force" doc:"Bypass the cached aggregate and recompute"`
}

// ProgressOutput wraps the aggregate for Huma.
type ProgressOutput struct {
	Body domain.OverallProgress
}

func (s *Server) handleGetOverallProgress(ctx context.Context, input *GetProgressInput) (*ProgressOutput, error) {
	progress, err := s.services.Progress.ComputeProgress(ctx, input.Force)
	if err != nil {
		return nil, err
	}
	return &ProgressOutput{Body: *progress}, nil
}
