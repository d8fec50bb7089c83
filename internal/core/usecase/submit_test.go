package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/avolkov/fakelens/internal/core/domain"
)

type repoFake struct {
	created []domain.Analysis
}

func (f *repoFake) Create(_ context.Context, analysis *domain.Analysis) error {
	f.created = append(f.created, *analysis)
	return nil
}

func (f *repoFake) GetByID(context.Context, string) (*domain.Analysis, error) {
	return nil, domain.WrapError(domain.ErrAnalysisNotFound, "get", errors.New("fake"))
}

func (f *repoFake) List(context.Context, int) ([]domain.Analysis, error) { return nil, nil }

func (f *repoFake) UpdateStatus(context.Context, string, domain.AnalysisStatus, string) error {
	return nil
}

func (f *repoFake) SaveResult(context.Context, string, *domain.DetectionResponse) error { return nil }

type storageFake struct {
	saved map[string][]byte
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = make(map[string][]byte)
	}
	f.saved[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := f.saved[key]
	if !ok {
		return nil, errors.New("missing blob")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *storageFake) Remove(_ context.Context, key string) error {
	delete(f.saved, key)
	return nil
}

type queueFake struct {
	published []string
}

func (f *queueFake) PublishAnalysisSubmitted(_ context.Context, analysisID string) error {
	f.published = append(f.published, analysisID)
	return nil
}

func (f *queueFake) SubscribeAnalysisSubmitted(context.Context, func(context.Context, string) error) error {
	return nil
}

func TestSubmitStoresRecordsAndPublishes(t *testing.T) {
	repo := &repoFake{}
	storage := &storageFake{}
	queue := &queueFake{}
	uc := NewSubmitAnalysisUseCase(repo, storage, queue, formatsFake{formats: testFormats()})

	analysis, err := uc.Submit(context.Background(), "My Clip.wav", "audio/wav", 7, strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if analysis.Status != domain.StatusQueued {
		t.Fatalf("status = %s, want queued", analysis.Status)
	}
	if len(repo.created) != 1 || repo.created[0].ID != analysis.ID {
		t.Fatalf("repo record missing: %+v", repo.created)
	}
	if !strings.HasSuffix(analysis.StoragePath, "_My_Clip.wav") {
		t.Fatalf("storage key %q not sanitized as expected", analysis.StoragePath)
	}
	if got := string(storage.saved[analysis.StoragePath]); got != "payload" {
		t.Fatalf("stored blob = %q, want payload", got)
	}
	if len(queue.published) != 1 || queue.published[0] != analysis.ID {
		t.Fatalf("published ids = %v, want [%s]", queue.published, analysis.ID)
	}
}

func TestSubmitRejectsInvalidUploadWithoutSideEffects(t *testing.T) {
	repo := &repoFake{}
	storage := &storageFake{}
	queue := &queueFake{}
	uc := NewSubmitAnalysisUseCase(repo, storage, queue, formatsFake{formats: testFormats()})

	_, err := uc.Submit(context.Background(), "file.xyz", "application/octet-stream", 7, strings.NewReader("x"))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want validation kind", err)
	}
	if len(repo.created) != 0 || len(storage.saved) != 0 || len(queue.published) != 0 {
		t.Fatalf("rejected upload must leave no side effects")
	}
}

func TestSubmitFailsClosedWhenFormatsUnavailable(t *testing.T) {
	uc := NewSubmitAnalysisUseCase(&repoFake{}, &storageFake{}, &queueFake{}, formatsFake{err: errors.New("down")})

	_, err := uc.Submit(context.Background(), "clip.wav", "audio/wav", 7, strings.NewReader("x"))
	if !domain.IsKind(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want validation kind", err)
	}
	if !strings.Contains(err.Error(), domain.MsgFormatsUnavailable) {
		t.Fatalf("err %q does not carry the formats-unavailable message", err.Error())
	}
}
