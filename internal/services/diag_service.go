// Package services exposes the analysis core to the transport layer.
package services

import (
	"log/slog"
	"strings"

	"github.com/sentrastack/sentra-diag/internal/models"
	"github.com/sentrastack/sentra-diag/internal/session"
	"github.com/sentrastack/sentra-diag/internal/utils"
)

// DiagService is the boundary facade over the session coordinator. It keeps
// the transport layer free of domain validation.
type DiagService struct {
	logger      *slog.Logger
	coordinator *session.Coordinator
}

// NewDiagService constructs the service facade.
func NewDiagService(logger *slog.Logger, coordinator *session.Coordinator) *DiagService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DiagService{logger: logger, coordinator: coordinator}
}

// Analyze validates and submits one analysis job, returning its session id.
func (s *DiagService) Analyze(req models.AnalyzeRequest) (string, error) {
	const op = "services.Analyze"
	req.AnalysisType = strings.TrimSpace(req.AnalysisType)
	if req.AnalysisType == "" {
		return "", utils.NewAppError(op, utils.KindInvalidArgument, "analysis_type is required", nil)
	}
	for _, file := range req.Files {
		if len(file.Data) == 0 {
			return "", utils.NewAppError(op, utils.KindInvalidArgument, "empty file "+file.Name, nil)
		}
	}

	id, err := s.coordinator.Submit(req)
	if err != nil {
		return "", err
	}
	s.logger.Debug("analysis submitted",
		slog.String("session", id),
		slog.String("analysis_type", req.AnalysisType),
		slog.Int("files", len(req.Files)))
	return id, nil
}

// Status answers a status poll for the given session.
func (s *DiagService) Status(id string) (models.StatusResponse, error) {
	if id == "" {
		return models.StatusResponse{}, utils.NewAppError("services.Status", utils.KindInvalidArgument, "session id is required", nil)
	}
	return s.coordinator.Status(id)
}

// Result fetches the completed report for the given session.
func (s *DiagService) Result(id string) (*models.AnalysisReport, error) {
	if id == "" {
		return nil, utils.NewAppError("services.Result", utils.KindInvalidArgument, "session id is required", nil)
	}
	return s.coordinator.Result(id)
}

// Cleanup disposes a session ahead of the retention reaper.
func (s *DiagService) Cleanup(id string) error {
	if id == "" {
		return utils.NewAppError("services.Cleanup", utils.KindInvalidArgument, "session id is required", nil)
	}
	return s.coordinator.Cleanup(id)
}
