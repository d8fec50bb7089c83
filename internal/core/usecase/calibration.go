package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/avolkov/fakelens/internal/core/domain"
	"github.com/avolkov/fakelens/internal/core/ports"
)

// CalibrationKey is the fixed settings-store key holding the serialized
// calibration configuration.
const CalibrationKey = "calibration"

// CalibrationStore owns the calibration configuration. The in-memory copy is
// authoritative for the session: persistence is write-through and
// fire-and-forget, a failed write is logged and swallowed, and unreadable or
// malformed persisted state falls back to defaults at load time.
type CalibrationStore struct {
	store ports.SettingsStore

	mu      sync.Mutex
	current domain.CalibrationConfig
}

func NewCalibrationStore(ctx context.Context, store ports.SettingsStore) *CalibrationStore {
	s := &CalibrationStore{
		store:   store,
		current: domain.DefaultCalibration(),
	}

	raw, ok, err := store.Get(ctx, CalibrationKey)
	if err != nil {
		slog.Warn("calibration_load_failed", "error", err)
		return s
	}
	if !ok {
		return s
	}

	var persisted domain.CalibrationConfig
	if err := json.Unmarshal(raw, &persisted); err != nil {
		slog.Warn("calibration_malformed", "error", err)
		return s
	}
	s.current = persisted.Normalized()
	return s
}

func (s *CalibrationStore) Current(context.Context) domain.CalibrationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Update merges the patch over the current configuration, persists the merged
// result and returns it. Missing patch fields are preserved.
func (s *CalibrationStore) Update(ctx context.Context, patch domain.CalibrationPatch) domain.CalibrationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = s.current.Apply(patch).Normalized()
	s.persist(ctx)
	return s.current
}

// Reset restores defaults and clears the persisted entry.
func (s *CalibrationStore) Reset(ctx context.Context) domain.CalibrationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = domain.DefaultCalibration()
	if err := s.store.Delete(ctx, CalibrationKey); err != nil {
		slog.Warn("calibration_clear_failed", "error", err)
	}
	return s.current
}

func (s *CalibrationStore) persist(ctx context.Context) {
	raw, err := json.Marshal(s.current)
	if err != nil {
		slog.Warn("calibration_encode_failed", "error", err)
		return
	}
	if err := s.store.Set(ctx, CalibrationKey, raw); err != nil {
		slog.Warn("calibration_persist_failed", "error", err)
	}
}
