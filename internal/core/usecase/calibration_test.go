package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/avolkov/fakelens/internal/core/domain"
)

type settingsFake struct {
	values map[string][]byte
	getErr error
	setErr error
}

func newSettingsFake() *settingsFake {
	return &settingsFake{values: make(map[string][]byte)}
}

func (f *settingsFake) Get(_ context.Context, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	raw, ok := f.values[key]
	return raw, ok, nil
}

func (f *settingsFake) Set(_ context.Context, key string, value []byte) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.values[key] = value
	return nil
}

func (f *settingsFake) Delete(_ context.Context, key string) error {
	delete(f.values, key)
	return nil
}

func TestCalibrationStartsWithDefaults(t *testing.T) {
	store := NewCalibrationStore(context.Background(), newSettingsFake())

	got := store.Current(context.Background())
	if got != domain.DefaultCalibration() {
		t.Fatalf("fresh store = %+v, want defaults", got)
	}
}

func TestCalibrationUpdateMergesAndPersists(t *testing.T) {
	settings := newSettingsFake()
	store := NewCalibrationStore(context.Background(), settings)

	threshold := 0.7
	got := store.Update(context.Background(), domain.CalibrationPatch{Threshold: &threshold})
	if got.Threshold != 0.7 {
		t.Fatalf("threshold = %v, want 0.7", got.Threshold)
	}
	if got.UncertaintyRange != domain.DefaultUncertaintyRange {
		t.Fatalf("untouched field changed: %v", got.UncertaintyRange)
	}

	// A fresh store over the same settings must see the persisted value.
	reloaded := NewCalibrationStore(context.Background(), settings)
	if reloaded.Current(context.Background()).Threshold != 0.7 {
		t.Fatalf("persisted threshold not reloaded")
	}
}

func TestCalibrationResetRestoresDefaultsAndClears(t *testing.T) {
	settings := newSettingsFake()
	store := NewCalibrationStore(context.Background(), settings)

	flip := true
	store.Update(context.Background(), domain.CalibrationPatch{FlipOutputInterpretation: &flip})

	got := store.Reset(context.Background())
	if got != domain.DefaultCalibration() {
		t.Fatalf("reset = %+v, want defaults", got)
	}
	if _, ok := settings.values[CalibrationKey]; ok {
		t.Fatalf("persisted entry must be cleared on reset")
	}
}

func TestCalibrationToleratesMalformedPersistedState(t *testing.T) {
	settings := newSettingsFake()
	settings.values[CalibrationKey] = []byte("{not json")

	store := NewCalibrationStore(context.Background(), settings)
	if got := store.Current(context.Background()); got != domain.DefaultCalibration() {
		t.Fatalf("malformed state must fall back to defaults, got %+v", got)
	}
}

func TestCalibrationUpdateSurvivesPersistFailure(t *testing.T) {
	settings := newSettingsFake()
	settings.setErr = errors.New("disk full")
	store := NewCalibrationStore(context.Background(), settings)

	threshold := 0.6
	got := store.Update(context.Background(), domain.CalibrationPatch{Threshold: &threshold})
	if got.Threshold != 0.6 {
		t.Fatalf("in-memory update must win even when persistence fails, got %v", got.Threshold)
	}
	if store.Current(context.Background()).Threshold != 0.6 {
		t.Fatalf("current must reflect the merged value")
	}
}
