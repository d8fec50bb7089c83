package ports

import (
	"context"
	"io"

	"github.com/avolkov/fakelens/internal/core/domain"
)

// AnalysisSubmitter is the inbound contract for accepting an upload into the
// pipeline: validate, store, record, enqueue.
type AnalysisSubmitter interface {
	Submit(ctx context.Context, filename, mimeType string, size int64, body io.Reader) (*domain.Analysis, error)
}

// AnalysisRunner executes detection for a previously submitted analysis.
type AnalysisRunner interface {
	RunByID(ctx context.Context, analysisID string) error
}

// AnalysisReader is the inbound read model for analysis state.
type AnalysisReader interface {
	GetByID(ctx context.Context, id string) (*domain.Analysis, error)
	List(ctx context.Context, limit int) ([]domain.Analysis, error)
}

// CalibrationService owns the calibration configuration and its persistence.
type CalibrationService interface {
	Current(ctx context.Context) domain.CalibrationConfig
	Update(ctx context.Context, patch domain.CalibrationPatch) domain.CalibrationConfig
	Reset(ctx context.Context) domain.CalibrationConfig
}
