// Package kv is a durable, string keyed and string valued storage.
//
// It is used to keep a copy of the fixture database alive across restarts.
// Multiple backends exist, all implementing Storage.
package kv

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	ErrStore    = errors.New("could not store value")
	ErrLoad     = errors.New("could not load value")
	ErrInvalid  = errors.New("invalid key")
)

// Storage is a durable key value store.
// Get returns ErrNotFound for keys that were never set or got deleted.
type Storage interface {
	Get(ctx context.Context, key Key) (string, error)
	Set(ctx context.Context, key Key, value string) error
	Delete(ctx context.Context, key Key) error
}

// StorageCloser is a Storage that holds resources which have to be released.
type StorageCloser interface {
	Storage
	Close() error
}

const separator = ":"

// NewKey returns a Key in the form of namespace:group:name.
func NewKey(namespace string, group string, name string) Key {
	return Key{namespace: namespace, group: group, name: name}
}

// ParseKey is the reverse of Key.String.
func ParseKey(key string) (Key, error) {
	parts := strings.Split(key, separator)
	if len(parts) != 3 { //nolint:mnd // namespace, group, name
		return Key{}, ErrInvalid
	}

	for _, p := range parts {
		if p == "" {
			return Key{}, ErrInvalid
		}
	}

	return NewKey(parts[0], parts[1], parts[2]), nil
}

type Key struct {
	namespace string
	group     string
	name      string
}

func (k Key) String() string {
	parts := []string{"MISSING", "MISSING", "MISSING"}

	if k.namespace != "" {
		parts[0] = k.namespace
	}

	if k.group != "" {
		parts[1] = k.group
	}

	if k.name != "" {
		parts[2] = k.name
	}

	return strings.Join(parts, separator)
}
