package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/loykin/vpnclient/internal/event"
)

// JSONFile keeps the log as a single JSON array on disk.
//
// Append is read-all, add-one, write-all. mu serializes that sequence inside one
// process only; another process writing the same file concurrently is not supported.
type JSONFile struct {
	mu   sync.Mutex
	path string
}

// NewJSONFile returns a store backed by path. The file is created lazily on first access.
func NewJSONFile(path string) (*JSONFile, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty events file path", ErrStorage)
	}
	return &JSONFile{path: filepath.Clean(path)}, nil
}

// Path returns the backing file path.
func (s *JSONFile) Path() string { return s.path }

func (s *JSONFile) All(ctx context.Context) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *JSONFile) Append(ctx context.Context, e event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.load()
	if err != nil {
		return err
	}
	events = append(events, e)
	return s.write(events)
}

func (s *JSONFile) Close() error { return nil }

// load reads the log, creating the file with an empty array when it does not exist.
func (s *JSONFile) load() ([]event.Event, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: read %s: %v", ErrStorage, s.path, err)
		}
		if err := s.write([]event.Event{}); err != nil {
			return nil, err
		}
		return []event.Event{}, nil
	}
	events := []event.Event{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return events, nil
	}
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrStorage, s.path, err)
	}
	return events, nil
}

// write replaces the file atomically via a temp file in the same directory.
func (s *JSONFile) write(events []event.Event) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: create dir %s: %v", ErrStorage, dir, err)
	}
	data, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrStorage, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: write %s: %v", ErrStorage, s.path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", ErrStorage, s.path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", ErrStorage, s.path, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", ErrStorage, s.path, err)
	}
	return nil
}
