package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/avolkov/fakelens/internal/core/domain"
	"github.com/avolkov/fakelens/internal/core/ports"
)

// AnalysisSession drives one file through validate, upload and interpret,
// exposing every transition as a snapshot. At most one analysis is live per
// session: calling Analyze again replaces the in-flight one, cancelling it
// first. Errors never escape as panics; consumers observe state.
//
// State updates are guarded by a generation counter: once a run has been
// replaced, cancelled or reset, its late progress and completion callbacks
// find a stale generation and touch nothing.
type AnalysisSession struct {
	backend ports.DetectionBackend
	formats ports.FormatSource
	notify  func(domain.SessionSnapshot)

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	snap   domain.SessionSnapshot
}

// NewAnalysisSession builds a session. notify may be nil; when set it is
// invoked synchronously on every transition and must not call back into the
// session.
func NewAnalysisSession(backend ports.DetectionBackend, formats ports.FormatSource, notify func(domain.SessionSnapshot)) *AnalysisSession {
	return &AnalysisSession{
		backend: backend,
		formats: formats,
		notify:  notify,
		snap:    domain.SessionSnapshot{Phase: domain.PhaseIdle},
	}
}

func (s *AnalysisSession) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Analyze runs the full pipeline for one upload. It blocks until the analysis
// reaches a terminal phase and returns the response or the classified error.
func (s *AnalysisSession) Analyze(ctx context.Context, upload domain.Upload, calibration *domain.CalibrationConfig) (*domain.DetectionResponse, error) {
	gen, runCtx := s.begin(ctx, upload.Filename)

	formats, err := s.formats.SupportedFormats(runCtx)
	if err != nil {
		// Fail closed: an unavailable format list never validates.
		s.toFailed(gen, domain.MsgFormatsUnavailable)
		return nil, domain.WrapError(domain.ErrValidation, "fetch supported formats", err)
	}

	if result := ValidateUpload(upload.Filename, upload.Size, formats); !result.Valid {
		s.toFailed(gen, result.Reason)
		return nil, domain.WrapError(domain.ErrValidation, "validate upload", errors.New(result.Reason))
	}

	s.toUploading(gen)

	var patch *domain.CalibrationPatch
	if calibration != nil {
		p := calibration.Normalized().Patch()
		patch = &p
	}

	resp, err := s.backend.Detect(runCtx, ports.DetectInput{
		Filename:    upload.Filename,
		MimeType:    upload.MimeType,
		Size:        upload.Size,
		Body:        upload.Body,
		Calibration: patch,
		OnProgress: func(p domain.UploadProgress) {
			s.onProgress(gen, p)
		},
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrCancelled) || errors.Is(runCtx.Err(), context.Canceled) {
			s.toCancelled(gen)
			return nil, domain.WrapError(domain.ErrCancelled, "detect", err)
		}
		s.toFailed(gen, domain.ReportFrom(err).Message)
		return nil, err
	}

	s.toSucceeded(gen, resp)
	return resp, nil
}

// Cancel aborts the in-flight transfer. No-op unless the session is uploading
// or awaiting a result.
func (s *AnalysisSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.Phase != domain.PhaseUploading && s.snap.Phase != domain.PhaseAwaitingResult {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.snap.Phase = domain.PhaseCancelled
	s.snap.ErrorMessage = domain.MsgCancelled
	s.publishLocked()
}

// Reset returns the session to idle, discarding result, error and file, and
// cancels any in-flight operation.
func (s *AnalysisSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.snap = domain.SessionSnapshot{Phase: domain.PhaseIdle}
	s.publishLocked()
}

// Close cancels any in-flight operation without emitting further snapshots.
// Call on teardown so no dangling transfer mutates state afterwards.
func (s *AnalysisSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *AnalysisSession) begin(ctx context.Context, filename string) (uint64, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Replace, never queue: the previous in-flight run is cancelled before
	// the new one starts.
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.snap = domain.SessionSnapshot{
		Phase:    domain.PhaseValidating,
		Filename: filename,
	}
	s.publishLocked()
	return s.gen, runCtx
}

func (s *AnalysisSession) onProgress(gen uint64, p domain.UploadProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		return
	}
	if s.snap.Phase != domain.PhaseUploading && s.snap.Phase != domain.PhaseAwaitingResult {
		return
	}
	if p.Percentage < s.snap.ProgressPercent {
		return
	}
	s.snap.ProgressPercent = p.Percentage
	if p.Percentage >= 100 {
		s.snap.Phase = domain.PhaseAwaitingResult
	}
	s.publishLocked()
}

func (s *AnalysisSession) toUploading(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.snap.Phase = domain.PhaseUploading
	s.snap.ProgressPercent = 0
	s.publishLocked()
}

func (s *AnalysisSession) toSucceeded(gen uint64, resp *domain.DetectionResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.cancel = nil
	s.snap.Phase = domain.PhaseSucceeded
	s.snap.ProgressPercent = 100
	s.snap.Result = resp
	s.snap.ErrorMessage = ""
	s.publishLocked()
}

func (s *AnalysisSession) toFailed(gen uint64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.cancel = nil
	s.snap.Phase = domain.PhaseFailed
	s.snap.ErrorMessage = message
	s.publishLocked()
}

func (s *AnalysisSession) toCancelled(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.cancel = nil
	if s.snap.Phase == domain.PhaseCancelled {
		return
	}
	s.snap.Phase = domain.PhaseCancelled
	s.snap.ErrorMessage = domain.MsgCancelled
	s.publishLocked()
}

func (s *AnalysisSession) publishLocked() {
	if s.notify != nil {
		s.notify(s.snap)
	}
}
