//go:build integration

package tests_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arrower/fixturedb/kv"
	"github.com/go-arrower/fixturedb/tests"
)

func TestStartDockerContainer(t *testing.T) {
	t.Parallel()

	t.Run("invalid run options", func(t *testing.T) {
		t.Parallel()

		cleanup, err := tests.StartDockerContainer(nil, nil)
		assert.True(t, errors.Is(err, tests.ErrDockerFailure))
		assert.Nil(t, cleanup)
	})

	t.Run("invalid retry func", func(t *testing.T) {
		t.Parallel()

		cleanup, err := tests.StartDockerContainer(&dockertest.RunOptions{Repository: "redis"}, nil)
		assert.True(t, errors.Is(err, tests.ErrDockerFailure))
		assert.Nil(t, cleanup)
	})

	t.Run("start container", func(t *testing.T) {
		t.Parallel()

		retryFunc := func(resource *dockertest.Resource) func() error {
			return func() error {
				client := redis.NewClient(&redis.Options{Addr: resource.GetHostPort("6379/tcp")})
				defer client.Close()

				return client.Ping(context.Background()).Err()
			}
		}

		cleanup, err := tests.StartDockerContainer(&dockertest.RunOptions{Repository: "redis", Tag: "7-alpine"}, retryFunc)
		require.NoError(t, err)
		assert.NoError(t, cleanup())
	})
}

func TestGetDockerContainerInstance(t *testing.T) {
	t.Parallel()

	_, err := tests.GetDockerContainerInstance(&dockertest.RunOptions{Repository: "redis"}, nil)
	assert.ErrorIs(t, err, tests.ErrMissingInstanceName)
}

func TestRedisDocker(t *testing.T) {
	t.Parallel()

	rd := tests.GetRedisDocker()
	assert.Same(t, rd, tests.GetRedisDocker())

	a, b := rd.Options(), rd.Options()
	assert.NotEqual(t, a.RedisDB, b.RedisDB, "every caller gets its own database")
	assert.Equal(t, kv.DriverRedis, a.Driver)
}

func TestPostgresDocker(t *testing.T) {
	t.Parallel()

	pd := tests.GetPostgresDocker()
	assert.Same(t, pd, tests.GetPostgresDocker())

	a, b := pd.Options(), pd.Options()
	assert.NotEqual(t, a.PostgresDatabase, b.PostgresDatabase, "every caller gets its own database")
}
