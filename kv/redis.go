package kv

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// NewRedis returns a Storage persisting into redis.
// Values are stored without expiration.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

var _ Storage = (*Redis)(nil)

type Redis struct {
	client *redis.Client
}

func (s *Redis) Get(ctx context.Context, key Key) (string, error) {
	value, err := s.client.Get(ctx, key.String()).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLoad, err)
	}

	return value, nil
}

func (s *Redis) Set(ctx context.Context, key Key, value string) error {
	err := s.client.Set(ctx, key.String(), value, 0).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	return nil
}

func (s *Redis) Delete(ctx context.Context, key Key) error {
	err := s.client.Del(ctx, key.String()).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	return nil
}

func (s *Redis) Close() error {
	return s.client.Close() //nolint:wrapcheck
}
