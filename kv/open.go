package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var ErrConnectionFailed = errors.New("connection failed")

// Drivers supported by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Drivers returns the list of all supported drivers.
func Drivers() []string {
	return []string{DriverMemory, DriverFile, DriverSQLite, DriverRedis, DriverPostgres}
}

// Options configure the backend returned by Open.
type Options struct {
	Driver string

	// Path is the file used by the file and sqlite drivers.
	Path string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PostgresUser     string
	PostgresPassword string
	PostgresDatabase string
	PostgresHost     string
	PostgresPort     int
	PostgresSSLMode  string
	PostgresMaxConns int

	// MaxRetries is how often a connection to a networked backend is retried.
	MaxRetries uint64

	// TracerProvider traces the queries of the postgres driver. Default is no tracing.
	TracerProvider trace.TracerProvider

	// Logger reports problems the storage recovers from, like an undecodable file.
	Logger *slog.Logger
}

// Open returns the Storage configured by opts.
// Connections to redis and postgres are retried with an exponential backoff,
// as the services might still be starting up.
func Open(ctx context.Context, opts Options) (StorageCloser, error) {
	switch opts.Driver {
	case DriverMemory, "":
		return NewInMemory(), nil
	case DriverFile:
		storage, err := NewJSONFile(opts.Path, WithJSONFileLogger(opts.Logger))
		if err != nil {
			return nil, err
		}

		return storage, nil
	case DriverSQLite:
		db, err := OpenSQLite(ctx, opts.Path)
		if err != nil {
			return nil, err
		}

		return NewSQLite(db), nil
	case DriverRedis:
		storage, err := openRedis(ctx, opts)
		if err != nil {
			return nil, err
		}

		return storage, nil
	case DriverPostgres:
		storage, err := openPostgres(ctx, opts)
		if err != nil {
			return nil, err
		}

		return storage, nil
	default:
		return nil, fmt.Errorf("%w: unknown driver: %s", ErrConnectionFailed, opts.Driver)
	}
}

func openRedis(ctx context.Context, opts Options) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.RedisAddr,
		Password: opts.RedisPassword,
		DB:       opts.RedisDB,
	})

	err := retry(ctx, opts.MaxRetries, func() error {
		return client.Ping(ctx).Err() //nolint:wrapcheck
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: could not ping redis: %v", ErrConnectionFailed, err)
	}

	return NewRedis(client), nil
}

func openPostgres(ctx context.Context, opts Options) (*Postgres, error) {
	conf, err := pgxpool.ParseConfig(postgresURL(opts))
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse config: %v", ErrConnectionFailed, err)
	}

	tp := opts.TracerProvider
	if tp == nil {
		tp = noop.NewTracerProvider()
	}

	conf.ConnConfig.RuntimeParams["application_name"] = "fixturedb"
	conf.ConnConfig.Tracer = &pgxTracer{tracer: tp.Tracer("github.com/go-arrower/fixturedb/kv")}

	pool, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("%w: could not connect: %v", ErrConnectionFailed, err)
	}

	err = retry(ctx, opts.MaxRetries, func() error {
		return pool.Ping(ctx) //nolint:wrapcheck
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: could not ping db: %v", ErrConnectionFailed, err)
	}

	storage := NewPostgres(pool)
	if err := storage.Migrate(); err != nil {
		pool.Close()
		return nil, err
	}

	return storage, nil
}

func postgresURL(opts Options) string {
	if opts.PostgresMaxConns == 0 { // prevent pool_max_conns too small error
		opts.PostgresMaxConns = 10
	}

	if opts.PostgresSSLMode == "" {
		opts.PostgresSSLMode = "disable"
	}

	query := url.Values{}
	query.Set("sslmode", opts.PostgresSSLMode)
	query.Set("pool_max_conns", strconv.Itoa(opts.PostgresMaxConns))

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(opts.PostgresUser, opts.PostgresPassword),
		Host:     net.JoinHostPort(opts.PostgresHost, strconv.Itoa(opts.PostgresPort)),
		Path:     "/" + opts.PostgresDatabase,
		RawQuery: query.Encode(),
	}

	return u.String()
}

func retry(ctx context.Context, maxRetries uint64, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second //nolint:mnd

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)) //nolint:wrapcheck
}
