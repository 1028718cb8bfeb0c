package kv

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:embed migrations/*.sql
var migrations embed.FS

var ErrMigrationFailed = errors.New("migration failed")

// NewPostgres returns a Storage persisting into the table fixturedb_kv.
// Call Migrate once, before the storage is used.
func NewPostgres(pgxPool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pgxPool}
}

var _ Storage = (*Postgres)(nil)

type Postgres struct {
	pool *pgxpool.Pool
}

// Migrate brings the schema to the latest version.
func (s *Postgres) Migrate() error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("%w: could not read migrations: %v", ErrMigrationFailed, err)
	}

	db := stdlib.OpenDBFromPool(s.pool)

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "fixturedb_schema_migrations"}) //nolint:exhaustruct
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: could not get database driver: %v", ErrMigrationFailed, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, s.pool.Config().ConnConfig.Database, driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%w: could not migrate up: %v", ErrMigrationFailed, err)
	}

	return nil
}

func (s *Postgres) Get(ctx context.Context, key Key) (string, error) {
	var value string

	err := pgxscan.Get(ctx, s.pool, &value, `SELECT value FROM fixturedb_kv WHERE key = $1`, key.String())
	if pgxscan.NotFound(err) {
		return "", fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLoad, err)
	}

	return value, nil
}

func (s *Postgres) Set(ctx context.Context, key Key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fixturedb_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = NOW()`,
		key.String(), value,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	return nil
}

func (s *Postgres) Delete(ctx context.Context, key Key) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM fixturedb_kv WHERE key = $1`, key.String())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	return nil
}

func (s *Postgres) Close() error {
	s.pool.Close()

	return nil
}

type spanKey struct{}

var _ pgx.QueryTracer = (*pgxTracer)(nil)

// pgxTracer starts a span for every query.
type pgxTracer struct {
	tracer trace.Tracer
}

func (p pgxTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx, span := p.tracer.Start(ctx, "pgx", trace.WithAttributes(
		attribute.String("db.host", conn.Config().Host),
		attribute.String("db.name", conn.Config().Database),
		attribute.String("db.statement", data.SQL),
	))

	return context.WithValue(ctx, spanKey{}, span)
}

func (p pgxTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(spanKey{}).(trace.Span)
	if !ok {
		return
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))

	if data.Err != nil {
		span.SetStatus(codes.Error, data.Err.Error())
	}

	span.End()
}
