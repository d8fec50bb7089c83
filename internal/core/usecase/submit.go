package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avolkov/fakelens/internal/core/domain"
	"github.com/avolkov/fakelens/internal/core/ports"
)

type SubmitAnalysisUseCase struct {
	repo    ports.AnalysisRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	formats ports.FormatSource
}

func NewSubmitAnalysisUseCase(
	repo ports.AnalysisRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	formats ports.FormatSource,
) *SubmitAnalysisUseCase {
	return &SubmitAnalysisUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		formats: formats,
	}
}

// Submit validates the upload, stores the blob, records the analysis as
// queued and publishes it for the worker. Validation happens here so the
// caller gets an immediate rejection instead of a failed record.
func (uc *SubmitAnalysisUseCase) Submit(
	ctx context.Context,
	filename, mimeType string,
	size int64,
	body io.Reader,
) (*domain.Analysis, error) {
	formats, err := uc.formats.SupportedFormats(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrValidation, "fetch supported formats",
			fmt.Errorf("%s: %w", domain.MsgFormatsUnavailable, err))
	}
	if result := ValidateUpload(filename, size, formats); !result.Valid {
		return nil, domain.WrapError(domain.ErrValidation, "validate upload", errors.New(result.Reason))
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save upload to object storage: %w", err)
	}

	analysis := &domain.Analysis{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: storageKey,
		SizeBytes:   size,
		Status:      domain.StatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, analysis); err != nil {
		return nil, fmt.Errorf("create analysis record: %w", err)
	}

	if err := uc.queue.PublishAnalysisSubmitted(ctx, analysis.ID); err != nil {
		return nil, fmt.Errorf("publish submitted event: %w", err)
	}

	return analysis, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" {
		return "upload.bin"
	}
	return base
}
