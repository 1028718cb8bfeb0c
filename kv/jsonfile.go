package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-arrower/fixturedb/alog"
)

var _ Storage = (*JSONFile)(nil)

// JSONFile is a naive implementation of a Storage.
// It persists all values as a single, human-readable JSON object on disc.
// The file is replaced as a whole on every write, so it is never left half written.
// A file that cannot be decoded is treated as empty and overwritten by the next write.
// CAUTION: This is only intended for local development and prototyping.
type JSONFile struct {
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

type JSONFileOption func(*JSONFile)

// WithJSONFileLogger reports files that cannot be decoded.
func WithJSONFileLogger(logger *slog.Logger) JSONFileOption {
	return func(s *JSONFile) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewJSONFile returns a JSONFile storing into the file at path.
// The parent directory is created if it does not exist.
func NewJSONFile(path string, opts ...JSONFileOption) (*JSONFile, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: missing file path", ErrStore)
	}

	err := os.MkdirAll(filepath.Dir(path), os.ModePerm)
	if err != nil {
		return nil, fmt.Errorf("%w: could not create path: %s: %v", ErrStore, path, err)
	}

	s := &JSONFile{path: path, logger: alog.NewNoop(), mu: sync.Mutex{}}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *JSONFile) Get(_ context.Context, key Key) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return "", err
	}

	v, ok := data[key.String()]
	if !ok {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	return v, nil
}

func (s *JSONFile) Set(_ context.Context, key Key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}

	data[key.String()] = value

	return s.store(data)
}

func (s *JSONFile) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}

	delete(data, key.String())

	return s.store(data)
}

func (s *JSONFile) Close() error {
	return nil
}

// load reads the file, a missing or undecodable file is the same as an empty one.
func (s *JSONFile) load() (map[string]string, error) {
	data := map[string]string{}

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return data, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoad, err)
	}

	if len(b) == 0 {
		return data, nil
	}

	err = json.Unmarshal(b, &data)
	if err != nil {
		s.logger.Warn("discard undecodable storage file",
			slog.String("path", s.path),
			slog.String("err", err.Error()),
		)

		return map[string]string{}, nil
	}

	return data, nil
}

// store writes data into a temporary file next to path and renames it over path.
func (s *JSONFile) store(data map[string]string) error {
	b, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	defer os.Remove(tmp.Name()) // no-op after a successful rename

	_, err = tmp.Write(b)
	if err == nil {
		err = tmp.Sync()
	}

	if cerr := tmp.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	return nil
}
