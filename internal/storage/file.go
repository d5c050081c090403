package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config holds the state file locations.
type Config struct {
	DestinationsFile string
	WatermarkFile    string
}

// JSONFile is a single JSON document on disk holding a value of type T.
// It is safe for concurrent use.
type JSONFile[T any] struct {
	path string
	mu   sync.Mutex
}

func NewJSONFile[T any](path string) (*JSONFile[T], error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage: file path is required")
	}
	return &JSONFile[T]{path: path}, nil
}

func (f *JSONFile[T]) Path() string { return f.path }

// Load decodes the file. A missing or empty file yields def with found=false.
func (f *JSONFile[T]) Load(def T) (v T, found bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return def, false, nil
	}
	if err != nil {
		return def, false, fmt.Errorf("storage: read %s: %w", f.path, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return def, false, nil
	}
	if err := json.Unmarshal(b, &v); err != nil {
		return def, false, fmt.Errorf("storage: decode %s: %w", f.path, err)
	}
	return v, true, nil
}

// Save writes v to a temp file in the same directory and renames it over
// the target, so readers never observe a partial document.
func (f *JSONFile[T]) Save(v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: encode %s: %w", f.path, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp for %s: %w", f.path, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("storage: write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("storage: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("storage: close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("storage: chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		cleanup()
		return fmt.Errorf("storage: replace %s: %w", f.path, err)
	}
	return nil
}
