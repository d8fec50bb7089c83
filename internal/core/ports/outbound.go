package ports

import (
	"context"
	"io"

	"github.com/avolkov/fakelens/internal/core/domain"
)

// DetectInput carries one detect call: the file payload, the calibration
// fields to serialize (nil fields are omitted from the request) and an
// optional progress callback invoked as bytes go out.
type DetectInput struct {
	Filename    string
	MimeType    string
	Size        int64
	Body        io.Reader
	Calibration *domain.CalibrationPatch
	OnProgress  func(domain.UploadProgress)
}

// DetectionBackend is the remote classification service boundary.
type DetectionBackend interface {
	CheckHealth(ctx context.Context) (domain.HealthStatus, error)
	Info(ctx context.Context) (domain.ServiceInfo, error)
	SupportedFormats(ctx context.Context) (domain.SupportedFormats, error)
	Detect(ctx context.Context, in DetectInput) (*domain.DetectionResponse, error)
}

// FormatSource yields the accepted-format sets, typically behind a
// session-lifetime cache.
type FormatSource interface {
	SupportedFormats(ctx context.Context) (domain.SupportedFormats, error)
}

// AnalysisRepository persists and reads analysis state.
type AnalysisRepository interface {
	Create(ctx context.Context, analysis *domain.Analysis) error
	GetByID(ctx context.Context, id string) (*domain.Analysis, error)
	List(ctx context.Context, limit int) ([]domain.Analysis, error)
	UpdateStatus(ctx context.Context, id string, status domain.AnalysisStatus, errMessage string) error
	SaveResult(ctx context.Context, id string, result *domain.DetectionResponse) error
}

// ObjectStorage stores uploaded media blobs.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// SettingsStore is the injected key-value capability behind calibration
// persistence. Missing keys are reported via the bool, not an error.
type SettingsStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes submitted-analysis events.
type MessageQueue interface {
	PublishAnalysisSubmitted(ctx context.Context, analysisID string) error
	SubscribeAnalysisSubmitted(ctx context.Context, handler func(context.Context, string) error) error
}
