//go:build integration

package tests

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/go-testfixtures/testfixtures/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/ory/dockertest/v3"

	"github.com/go-arrower/fixturedb/kv"
)

//nolint:gochecknoglobals // singleton, so all tests share one container
var (
	muPostgres        = sync.Mutex{}
	singletonPostgres *PostgresDocker

	defaultPGOptions = kv.Options{ //nolint:exhaustruct
		Driver:           kv.DriverPostgres,
		PostgresUser:     "fixturedb",
		PostgresPassword: "secret",
		PostgresDatabase: "fixturedb_test",
		PostgresHost:     "localhost",
		PostgresSSLMode:  "disable",
		PostgresMaxConns: 5, //nolint:mnd
		MaxRetries:       3, //nolint:mnd
	}
)

// GetPostgresDocker returns a running postgres container, shared by all callers.
// In case of an issue, it panics.
func GetPostgresDocker() *PostgresDocker {
	muPostgres.Lock()
	defer muPostgres.Unlock()

	if singletonPostgres != nil {
		return singletonPostgres
	}

	var admin *pgxpool.Pool

	opts := defaultPGOptions

	runOptions := &dockertest.RunOptions{ //nolint:exhaustruct
		Repository: "postgres",
		Tag:        "16-alpine",
		Name:       fmt.Sprintf("fixturedb-testing-postgres-%d", rand.Intn(1000)), //nolint:gosec,mnd
		Env: []string{
			"POSTGRES_USER=" + opts.PostgresUser,
			"POSTGRES_PASSWORD=" + opts.PostgresPassword,
			"POSTGRES_DB=" + opts.PostgresDatabase,
		},
		Cmd: []string{"-c", "max_connections=500"},
	}

	cleanup, err := GetDockerContainerInstance(runOptions, func(resource *dockertest.Resource) func() error {
		opts.PostgresPort, _ = strconv.Atoi(resource.GetPort("5432/tcp"))

		return func() error {
			pool, err := pgxpool.New(context.Background(), url(opts))
			if err != nil {
				return err //nolint:wrapcheck
			}

			if err := pool.Ping(context.Background()); err != nil {
				pool.Close()
				return err //nolint:wrapcheck
			}

			admin = pool

			return nil
		}
	})
	if err != nil {
		panic(err)
	}

	singletonPostgres = &PostgresDocker{
		admin:   admin,
		opts:    opts,
		cleanup: cleanup,
	}

	return singletonPostgres
}

type PostgresDocker struct {
	admin   *pgxpool.Pool
	opts    kv.Options
	cleanup func() error
}

// Options returns the options to open a storage on a new, empty database, see kv.Open.
// In case of an issue, it panics.
func (pd *PostgresDocker) Options() kv.Options {
	name := randomDatabaseName()

	if _, err := pd.admin.Exec(context.Background(), "CREATE DATABASE "+name); err != nil {
		panic(err)
	}

	opts := pd.opts
	opts.PostgresDatabase = name

	return opts
}

// NewStorage returns a postgres Storage on a new, empty database.
func (pd *PostgresDocker) NewStorage() kv.StorageCloser {
	storage, err := kv.Open(context.Background(), pd.Options())
	if err != nil {
		panic(err)
	}

	return storage
}

// LoadFixtures inserts the rows of the fixture files into the database of opts.
// Files are named after the table, e.g. testdata/fixtures/fixturedb_kv.yml.
// Use it to prepare a storage in a state that is hard to reach through the API, e.g. an old version.
func (pd *PostgresDocker) LoadFixtures(opts kv.Options, files ...string) {
	pool, err := pgxpool.New(context.Background(), url(opts))
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	fixtures, err := testfixtures.New(
		testfixtures.Database(db),
		testfixtures.Dialect("postgres"),
		testfixtures.Files(files...),
	)
	if err != nil {
		panic(err)
	}

	if err := fixtures.Load(); err != nil {
		panic(err)
	}
}

// Cleanup closes the connection, stops and removes the container.
// In case of an issue, it panics.
func (pd *PostgresDocker) Cleanup() {
	pd.admin.Close()

	if err := pd.cleanup(); err != nil {
		panic(err)
	}
}

func url(opts kv.Options) string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable",
		opts.PostgresUser, opts.PostgresPassword,
		net.JoinHostPort(opts.PostgresHost, strconv.Itoa(opts.PostgresPort)),
		opts.PostgresDatabase,
	)
}

func randomDatabaseName() string {
	letters := []rune("abcdefghijklmnopqrstuvwxyz")
	rnd := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec

	const n = 16
	b := make([]rune, n)

	for i := range b {
		b[i] = letters[rnd.Intn(len(letters))]
	}

	return string(b) + "_test"
}
