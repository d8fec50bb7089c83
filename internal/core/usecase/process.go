package usecase

import (
	"context"
	"fmt"

	"github.com/avolkov/fakelens/internal/core/domain"
	"github.com/avolkov/fakelens/internal/core/ports"
)

type ProcessAnalysisUseCase struct {
	repo        ports.AnalysisRepository
	storage     ports.ObjectStorage
	backend     ports.DetectionBackend
	formats     ports.FormatSource
	calibration ports.CalibrationService
}

func NewProcessAnalysisUseCase(
	repo ports.AnalysisRepository,
	storage ports.ObjectStorage,
	backend ports.DetectionBackend,
	formats ports.FormatSource,
	calibration ports.CalibrationService,
) *ProcessAnalysisUseCase {
	return &ProcessAnalysisUseCase{
		repo:        repo,
		storage:     storage,
		backend:     backend,
		formats:     formats,
		calibration: calibration,
	}
}

// RunByID loads a queued analysis and drives it through a fresh analysis
// session: validate, upload to the detection backend, persist the result.
// Every failure becomes a failed status with the normalized message.
func (uc *ProcessAnalysisUseCase) RunByID(ctx context.Context, analysisID string) error {
	if err := uc.repo.UpdateStatus(ctx, analysisID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	resp, err := uc.runSession(ctx, analysisID)
	if err != nil {
		report := domain.ReportFrom(err)
		if failErr := uc.repo.UpdateStatus(ctx, analysisID, domain.StatusFailed, report.Message); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.repo.SaveResult(ctx, analysisID, resp); err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, analysisID, domain.StatusFailed, "failed to persist result"); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return fmt.Errorf("save detection result: %w", err)
	}

	if err := uc.repo.UpdateStatus(ctx, analysisID, domain.StatusSucceeded, ""); err != nil {
		return fmt.Errorf("set status=succeeded: %w", err)
	}
	return nil
}

func (uc *ProcessAnalysisUseCase) runSession(ctx context.Context, analysisID string) (*domain.DetectionResponse, error) {
	analysis, err := uc.repo.GetByID(ctx, analysisID)
	if err != nil {
		return nil, fmt.Errorf("fetch analysis by id: %w", err)
	}

	blob, err := uc.storage.Open(ctx, analysis.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open stored upload: %w", err)
	}
	defer blob.Close()

	calibration := uc.calibration.Current(ctx)

	session := NewAnalysisSession(uc.backend, uc.formats, nil)
	defer session.Close()

	resp, err := session.Analyze(ctx, domain.Upload{
		Filename: analysis.Filename,
		MimeType: analysis.MimeType,
		Size:     analysis.SizeBytes,
		Body:     blob,
	}, &calibration)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
