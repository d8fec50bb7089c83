package localfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store is a file-per-key settings store: the key-value capability behind
// calibration persistence. A missing key is not an error.
type Store struct {
	basePath string
}

func New(basePath string) (*Store, error) {
	if basePath == "" {
		basePath = "./data/settings"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	raw, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read setting %s: %w", key, err)
	}
	return raw, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	if err := os.WriteFile(s.path(key), value, 0o644); err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}

func (s *Store) path(key string) string {
	// A key must never resolve outside basePath.
	key = strings.ReplaceAll(key, string(os.PathSeparator), "_")
	return filepath.Join(s.basePath, key+".json")
}
