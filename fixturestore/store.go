// Package fixturestore mirrors an in-memory fixture database into a durable storage.
//
// On Load the mirror is restored, if it was written with the same version.
// Afterwards, every handled request persists the current state of the database again.
// The durable storage is advisory only: a mirror that cannot be read never blocks
// a start and the database keeps its defaults instead.
package fixturestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/go-arrower/fixturedb/alog"
	"github.com/go-arrower/fixturedb/dispatch"
	"github.com/go-arrower/fixturedb/fixture"
	"github.com/go-arrower/fixturedb/kv"
)

var (
	ErrAlreadyLoaded = errors.New("fixture store is loaded already")
	ErrSave          = errors.New("could not save snapshot")
	ErrLoad          = errors.New("could not load snapshot")
)

// Database is the in-memory fixture database that gets mirrored.
type Database interface {
	Dump() fixture.Snapshot
	EmptyData()
	LoadData(snapshot fixture.Snapshot)
}

// Dispatcher notifies about handled requests.
type Dispatcher interface {
	OnHandled(l dispatch.Listener) func()
}

type state int

const (
	uninitialised state = iota
	initialised
)

// New returns a Store mirroring db into storage.
// Use Load once, to restore the mirror and start persisting after each
// request handled by the dispatcher.
func New(db Database, dispatcher Dispatcher, storage kv.Storage, opts ...Option) *Store {
	s := &Store{
		db:          db,
		dispatcher:  dispatcher,
		storage:     storage,
		version:     DefaultVersion,
		versionKey:  DefaultVersionKey,
		dataKey:     DefaultDataKey,
		defaults:    fixture.Snapshot{},
		logger:      alog.NewNoop(),
		tracer:      noop.NewTracerProvider().Tracer(""),
		metrics:     noopMetrics(),
		mu:          sync.Mutex{},
		state:       uninitialised,
		unsubscribe: nil,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Store keeps a durable mirror of a Database.
// It is safe for concurrent use; saves are serialised, so the mirror
// always holds a complete dump.
type Store struct {
	db         Database
	dispatcher Dispatcher
	storage    kv.Storage

	version    int
	versionKey kv.Key
	dataKey    kv.Key
	defaults   fixture.Snapshot

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics

	mu          sync.Mutex
	state       state
	unsubscribe func()
}

// Version returns the version marker the Store writes and accepts.
func (s *Store) Version() int {
	return s.version
}

// Loaded reports whether Load succeeded.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state == initialised
}

// Save writes the version and the complete content of the Database
// into the storage, overwriting any previous mirror.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(ctx)
}

// Reset replaces the content of the Database with the defaults and saves it.
func (s *Store) Reset(ctx context.Context) error {
	return s.ResetTo(ctx, s.defaults)
}

// ResetTo replaces the content of the Database with data and saves it.
// Afterwards, the Database and the storage both hold data, as normalised by the Database:
// a memdb.DB adds ids to records without one and keeps only the last record of duplicate ids.
func (s *Store) ResetTo(ctx context.Context, data fixture.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resetTo(ctx, data)
}

// Load restores the Database from the storage and starts mirroring.
//
// The persisted data is only used, if it exists and got written with the current version.
// If it cannot be parsed, it is ignored and the Database is left untouched.
// In all cases, the Store registers at the Dispatcher to save after every handled request.
//
// Errors reading the storage are returned and leave the Store unloaded.
// If saving the restored data fails, the Store is loaded anyway and the ErrSave is returned,
// the next handled request saves again.
//
// Load can be called only once, further calls return ErrAlreadyLoaded.
func (s *Store) Load(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "fixturestore.load")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == initialised {
		return ErrAlreadyLoaded
	}

	version, err := s.get(ctx, s.versionKey)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	data, err := s.get(ctx, s.dataKey)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	var restoreErr error

	switch {
	case data == "" || version != strconv.Itoa(s.version):
		s.logger.Log(ctx, alog.LevelInfo, "no matching mirror, keep default fixtures",
			slog.String("persisted_version", version),
			slog.Int("version", s.version),
		)
	default:
		restoreErr = s.restore(ctx, data)
		if restoreErr != nil {
			span.SetStatus(codes.Error, restoreErr.Error())
			s.logger.ErrorContext(ctx, "could not save restored fixtures", slog.String("err", restoreErr.Error()))
		}
	}

	s.unsubscribe = s.dispatcher.OnHandled(s.onHandled)
	s.state = initialised

	return restoreErr
}

// Close stops saving after handled requests.
// The Store can still be used to Save and Reset.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// restore parses the persisted data and resets the Database to it.
// Data that cannot be parsed is discarded, the Database keeps its content.
func (s *Store) restore(ctx context.Context, data string) error {
	snapshot, err := fixture.Parse(data)
	if err != nil {
		s.metrics.discarded.Inc()
		s.logger.Log(ctx, alog.LevelDebug, "discard malformed mirror", slog.String("err", err.Error()))

		return nil
	}

	if err := s.resetTo(ctx, snapshot); err != nil {
		return err
	}

	s.metrics.restores.Inc()
	s.logger.Log(ctx, alog.LevelInfo, "restored fixtures from mirror",
		slog.Int("version", s.version),
		slog.Any("tables", snapshot.Names()),
	)

	return nil
}

func (s *Store) onHandled(ctx context.Context, req dispatch.Request) error {
	err := s.Save(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "could not mirror fixtures after request",
			slog.String("method", req.Method),
			slog.String("path", req.Path),
			slog.String("err", err.Error()),
		)
	}

	return err
}

func (s *Store) resetTo(ctx context.Context, data fixture.Snapshot) error {
	s.db.EmptyData()
	s.db.LoadData(data)

	return s.save(ctx)
}

func (s *Store) save(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "fixturestore.save", trace.WithAttributes(
		attribute.Int("fixturedb.version", s.version),
	))
	defer span.End()

	data, err := json.Marshal(s.db.Dump())
	if err != nil {
		return s.saveFailed(span, err)
	}

	err = s.storage.Set(ctx, s.versionKey, strconv.Itoa(s.version))
	if err != nil {
		return s.saveFailed(span, err)
	}

	err = s.storage.Set(ctx, s.dataKey, string(data))
	if err != nil {
		return s.saveFailed(span, err)
	}

	s.metrics.saves.Inc()

	return nil
}

func (s *Store) saveFailed(span trace.Span, err error) error {
	s.metrics.failures.Inc()
	span.SetStatus(codes.Error, err.Error())

	return fmt.Errorf("%w: %w", ErrSave, err)
}

// get returns the value of key, an empty string if it is not set.
func (s *Store) get(ctx context.Context, key kv.Key) (string, error) {
	value, err := s.storage.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrLoad, err)
	}

	return value, nil
}
