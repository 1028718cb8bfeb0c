package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/go-arrower/fixturedb"
	"github.com/go-arrower/fixturedb/dispatch"
	"github.com/go-arrower/fixturedb/fixture"
	"github.com/go-arrower/fixturedb/fixturestore"
	"github.com/go-arrower/fixturedb/kv"
	"github.com/go-arrower/fixturedb/memdb"
)

type app struct {
	vip     *fixturedb.Viper
	conf    fixturedb.Config
	logger  *slog.Logger
	signals <-chan os.Signal
}

// instance is a fixture database mirrored into the configured storage.
type instance struct {
	db         *memdb.DB
	dispatcher *dispatch.Dispatcher
	storage    kv.StorageCloser
	store      *fixturestore.Store
	registry   *prometheus.Registry
	telemetry  *telemetry
}

// open connects to the storage and fills the database with the default fixtures.
// The mirror is not restored yet, call Load on the store for that.
func (a *app) open(ctx context.Context) (*instance, error) {
	defaults, err := a.defaults()
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	tel, err := newTelemetry(ctx, a.conf, registry)
	if err != nil {
		return nil, err
	}

	opts := a.conf.Storage.KVOptions()
	opts.TracerProvider = tel.tracerProvider
	opts.Logger = a.logger

	storage, err := kv.Open(ctx, opts)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("could not open storage %s: %w", a.conf.Storage.Driver, err)
	}

	storage = kv.Instrument(storage,
		kv.WithLogger(a.logger),
		kv.WithTracerProvider(tel.tracerProvider),
		kv.WithMeterProvider(tel.meterProvider),
	)

	db := memdb.New()
	db.LoadData(defaults)

	dispatcher := dispatch.New()

	store := fixturestore.New(db, dispatcher, storage,
		fixturestore.WithVersion(a.conf.Fixtures.Version),
		fixturestore.WithDefaults(defaults),
		fixturestore.WithLogger(a.logger),
		fixturestore.WithMetrics(registry),
		fixturestore.WithTracerProvider(tel.tracerProvider),
	)

	a.logger.Debug("opened fixture database",
		slog.String("storage", string(a.conf.Storage.Driver)),
		slog.Int("version", a.conf.Fixtures.Version),
		slog.Any("tables", defaults.Names()),
	)

	return &instance{
		db:         db,
		dispatcher: dispatcher,
		storage:    storage,
		store:      store,
		registry:   registry,
		telemetry:  tel,
	}, nil
}

func (i *instance) Close() error {
	i.store.Close()

	return errors.Join(
		i.storage.Close(),
		i.telemetry.Shutdown(context.Background()),
	)
}

// load restores the mirror. A mirror that got restored but could not be saved again
// does not stop the command, the next save retries it.
func (i *instance) load(ctx context.Context) error {
	err := i.store.Load(ctx)
	if err != nil && !errors.Is(err, fixturestore.ErrSave) {
		return fmt.Errorf("could not load fixtures: %w", err)
	}

	return nil
}

// defaults loads the fixture files. A missing directory means there are no defaults.
func (a *app) defaults() (fixture.Snapshot, error) {
	dir := a.conf.Fixtures.Dir

	snapshot, err := fixture.LoadDir(os.DirFS(dir), ".")
	if errors.Is(err, fs.ErrNotExist) {
		a.logger.Warn("fixtures directory does not exist, start without defaults", slog.String("dir", dir))

		return fixture.New(), nil
	}

	if err != nil {
		return fixture.Snapshot{}, err //nolint:wrapcheck
	}

	return snapshot, nil
}
