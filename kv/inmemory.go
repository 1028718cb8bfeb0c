package kv

import (
	"context"
	"fmt"
	"sync"
)

// NewInMemory returns a Storage that keeps all values in memory.
// It is not durable and intended for tests.
func NewInMemory() *InMemory {
	return &InMemory{
		mu:       sync.Mutex{},
		data:     map[string]string{},
		writes:   0,
		onChange: make(map[string][]func(value string)),
	}
}

var _ Storage = (*InMemory)(nil)

type InMemory struct {
	mu       sync.Mutex
	data     map[string]string
	writes   int
	onChange map[string][]func(value string)
}

func (s *InMemory) Get(_ context.Context, key Key) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key.String()]
	if !ok {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	return v, nil
}

func (s *InMemory) Set(_ context.Context, key Key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.data[key.String()]
	s.data[key.String()] = value
	s.writes++

	if !exists || current != value {
		s.notify(key, value)
	}

	return nil
}

func (s *InMemory) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key.String())

	return nil
}

// OnChange registers a callback, that is called every time the value of key changes.
// Callbacks are called synchronously, they must not use the InMemory storage themselves.
func (s *InMemory) OnChange(key Key, callback func(value string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onChange[key.String()] = append(s.onChange[key.String()], callback)
}

// Writes returns how often Set was called.
func (s *InMemory) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writes
}

func (s *InMemory) Close() error {
	return nil
}

func (s *InMemory) notify(key Key, value string) {
	for _, c := range s.onChange[key.String()] {
		c(value)
	}
}
