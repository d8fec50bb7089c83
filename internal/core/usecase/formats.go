package usecase

import (
	"context"
	"sync"

	"github.com/avolkov/fakelens/internal/core/domain"
	"github.com/avolkov/fakelens/internal/core/ports"
)

// FormatCatalog caches the backend's supported formats for the lifetime of
// the process. A successful fetch is kept and never revalidated; a failed
// fetch is not cached, so callers that need the list keep failing closed
// until the backend answers.
type FormatCatalog struct {
	backend ports.DetectionBackend

	mu     sync.Mutex
	cached *domain.SupportedFormats
}

func NewFormatCatalog(backend ports.DetectionBackend) *FormatCatalog {
	return &FormatCatalog{backend: backend}
}

func (c *FormatCatalog) SupportedFormats(ctx context.Context) (domain.SupportedFormats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil {
		return *c.cached, nil
	}

	formats, err := c.backend.SupportedFormats(ctx)
	if err != nil {
		return domain.SupportedFormats{}, err
	}

	normalized := formats.Normalized()
	c.cached = &normalized
	return normalized, nil
}
