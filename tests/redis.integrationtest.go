//go:build integration

package tests

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/ory/dockertest/v3"

	"github.com/go-arrower/fixturedb/kv"
)

// redisDatabases is the number of databases of a default redis configuration.
const redisDatabases = 16

//nolint:gochecknoglobals // singleton, so all tests share one container
var (
	muRedis        = sync.Mutex{}
	singletonRedis *RedisDocker
)

// GetRedisDocker returns a running redis container, shared by all callers.
// In case of an issue, it panics.
func GetRedisDocker() *RedisDocker {
	muRedis.Lock()
	defer muRedis.Unlock()

	if singletonRedis != nil {
		return singletonRedis
	}

	var addr string

	options := &dockertest.RunOptions{ //nolint:exhaustruct
		Repository: "redis",
		Tag:        "7-alpine",
		Name:       fmt.Sprintf("fixturedb-testing-redis-%d", rand.Intn(1000)), //nolint:gosec,mnd
	}

	cleanup, err := GetDockerContainerInstance(options, func(resource *dockertest.Resource) func() error {
		addr = resource.GetHostPort("6379/tcp")

		return func() error {
			client := redis.NewClient(&redis.Options{Addr: addr}) //nolint:exhaustruct
			defer client.Close()

			return client.Ping(context.Background()).Err() //nolint:wrapcheck
		}
	})
	if err != nil {
		panic(err)
	}

	singletonRedis = &RedisDocker{
		addr:    addr,
		cleanup: cleanup,
		nextDB:  0,
	}

	return singletonRedis
}

type RedisDocker struct {
	addr    string
	cleanup func() error

	mu     sync.Mutex
	nextDB int
}

// Addr returns host:port of the container.
func (rd *RedisDocker) Addr() string {
	return rd.addr
}

// Options returns the options to open a storage on the next free database, see kv.Open.
// The database is flushed, so every caller starts empty.
// Redis has 16 databases, after that they are reused.
func (rd *RedisDocker) Options() kv.Options {
	rd.mu.Lock()
	db := rd.nextDB % redisDatabases
	rd.nextDB++
	rd.mu.Unlock()

	client := redis.NewClient(&redis.Options{Addr: rd.addr, DB: db}) //nolint:exhaustruct
	defer client.Close()

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		panic(err)
	}

	return kv.Options{ //nolint:exhaustruct
		Driver:     kv.DriverRedis,
		RedisAddr:  rd.addr,
		RedisDB:    db,
		MaxRetries: 3, //nolint:mnd
	}
}

// NewStorage returns a redis Storage on the next free database.
func (rd *RedisDocker) NewStorage() kv.StorageCloser {
	storage, err := kv.Open(context.Background(), rd.Options())
	if err != nil {
		panic(err)
	}

	return storage
}

// Cleanup stops and removes the container.
// In case of an issue, it panics.
func (rd *RedisDocker) Cleanup() {
	if err := rd.cleanup(); err != nil {
		panic(err)
	}
}
