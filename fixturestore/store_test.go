package fixturestore_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/go-arrower/fixturedb/alog"
	"github.com/go-arrower/fixturedb/dispatch"
	"github.com/go-arrower/fixturedb/fixture"
	"github.com/go-arrower/fixturedb/fixturestore"
	"github.com/go-arrower/fixturedb/kv"
	"github.com/go-arrower/fixturedb/memdb"
)

const version = 4

var anyRequest = dispatch.Request{Method: "POST", Path: "/api/users", Status: 201}

// newStore returns a Store for a database initialised with the default fixtures.
func newStore(storage kv.Storage, opts ...fixturestore.Option) (*fixturestore.Store, *memdb.DB, *dispatch.Dispatcher) {
	db := memdb.New()
	db.LoadData(defaultFixtures())

	dispatcher := dispatch.New()

	opts = append([]fixturestore.Option{
		fixturestore.WithVersion(version),
		fixturestore.WithDefaults(defaultFixtures()),
	}, opts...)

	return fixturestore.New(db, dispatcher, storage, opts...), db, dispatcher
}

// persisted returns the snapshot and version currently in storage.
func persisted(t *testing.T, storage kv.Storage) (fixture.Snapshot, string) {
	t.Helper()

	v, err := storage.Get(ctx, fixturestore.DefaultVersionKey)
	require.NoError(t, err)

	data, err := storage.Get(ctx, fixturestore.DefaultDataKey)
	require.NoError(t, err)

	snapshot, err := fixture.Parse(data)
	require.NoError(t, err)

	return snapshot, v
}

func persist(t *testing.T, storage kv.Storage, version string, data string) {
	t.Helper()

	require.NoError(t, storage.Set(ctx, fixturestore.DefaultVersionKey, version))
	require.NoError(t, storage.Set(ctx, fixturestore.DefaultDataKey, data))
}

func TestNew(t *testing.T) {
	t.Parallel()

	store := fixturestore.New(memdb.New(), dispatch.New(), kv.NewInMemory())

	assert.Equal(t, fixturestore.DefaultVersion, store.Version())
	assert.False(t, store.Loaded())
}

func TestStore_Save(t *testing.T) {
	t.Parallel()

	t.Run("save version and data", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		store, db, _ := newStore(storage)

		err := store.Save(ctx)
		assert.NoError(t, err)

		snapshot, v := persisted(t, storage)
		assert.Equal(t, "4", v)
		assert.True(t, db.Dump().Equal(snapshot))
	})

	t.Run("overwrite previous mirror", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		persist(t, storage, "3", `{"old":[]}`)
		store, db, _ := newStore(storage)

		err := store.Save(ctx)
		assert.NoError(t, err)

		snapshot, v := persisted(t, storage)
		assert.Equal(t, "4", v)
		assert.True(t, db.Dump().Equal(snapshot))
	})

	t.Run("custom keys", func(t *testing.T) {
		t.Parallel()

		var (
			storage    = kv.NewInMemory()
			versionKey = kv.NewKey("app", "fixtures", "version")
			dataKey    = kv.NewKey("app", "fixtures", "data")
		)

		store, _, _ := newStore(storage, fixturestore.WithKeys(versionKey, dataKey))

		err := store.Save(ctx)
		assert.NoError(t, err)

		v, err := storage.Get(ctx, versionKey)
		assert.NoError(t, err)
		assert.Equal(t, "4", v)

		_, err = storage.Get(ctx, fixturestore.DefaultVersionKey)
		assert.ErrorIs(t, err, kv.ErrNotFound)
	})

	t.Run("storage fails", func(t *testing.T) {
		t.Parallel()

		storage := newFailingStorage()
		storage.setFailing(false, true)
		store, _, _ := newStore(storage)

		err := store.Save(ctx)
		assert.ErrorIs(t, err, fixturestore.ErrSave)
		assert.ErrorIs(t, err, errTest)
	})
}

func TestStore_ResetTo(t *testing.T) {
	t.Parallel()

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		store, db, _ := newStore(storage)

		err := store.ResetTo(ctx, customFixtures())
		assert.NoError(t, err)

		assert.True(t, customFixtures().Equal(db.Dump()), "memory holds the data")

		snapshot, v := persisted(t, storage)
		assert.Equal(t, "4", v)
		assert.True(t, customFixtures().Equal(snapshot), "storage holds the data")
	})

	t.Run("independent of previous storage", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		persist(t, storage, "1", "{not json")
		store, _, _ := newStore(storage)

		err := store.ResetTo(ctx, customFixtures())
		assert.NoError(t, err)

		snapshot, v := persisted(t, storage)
		assert.Equal(t, "4", v)
		assert.True(t, customFixtures().Equal(snapshot))
	})

	t.Run("duplicate ids are normalised", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		store, db, _ := newStore(storage)

		err := store.ResetTo(ctx, fixture.New(fixture.Table{Name: "users", Records: []fixture.Record{
			{"id": "1", "name": "Ada"},
			{"id": "1", "name": "Grace"},
		}}))
		assert.NoError(t, err)

		expected := fixture.New(fixture.Table{Name: "users", Records: []fixture.Record{{"id": "1", "name": "Grace"}}})
		snapshot, _ := persisted(t, storage)
		assert.True(t, expected.Equal(snapshot), "storage holds what the database holds")
		assert.True(t, expected.Equal(db.Dump()))
	})

	t.Run("empty snapshot", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		store, db, _ := newStore(storage)

		err := store.ResetTo(ctx, fixture.Snapshot{})
		assert.NoError(t, err)

		assert.Empty(t, db.Names())

		snapshot, _ := persisted(t, storage)
		assert.Empty(t, snapshot.Tables)
	})

	t.Run("storage fails", func(t *testing.T) {
		t.Parallel()

		storage := newFailingStorage()
		storage.setFailing(false, true)
		store, db, _ := newStore(storage)

		err := store.ResetTo(ctx, customFixtures())
		assert.ErrorIs(t, err, fixturestore.ErrSave)
		assert.True(t, customFixtures().Equal(db.Dump()), "memory is changed anyway")
	})
}

func TestStore_Reset(t *testing.T) {
	t.Parallel()

	storage := kv.NewInMemory()
	store, db, _ := newStore(storage)

	err := store.ResetTo(ctx, customFixtures())
	require.NoError(t, err)

	err = store.Reset(ctx)
	assert.NoError(t, err)

	assert.True(t, defaultFixtures().Equal(db.Dump()))

	snapshot, _ := persisted(t, storage)
	assert.True(t, defaultFixtures().Equal(snapshot))
}

func TestStore_Load(t *testing.T) {
	t.Parallel()

	t.Run("empty storage keeps defaults", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		store, db, dispatcher := newStore(storage)

		err := store.Load(ctx)
		assert.NoError(t, err)

		assert.True(t, defaultFixtures().Equal(db.Dump()))
		assert.Equal(t, 0, storage.Writes(), "storage is not touched")
		assert.Equal(t, 1, dispatcher.Len())
		assert.True(t, store.Loaded())
	})

	t.Run("empty storage is the same as a reset", func(t *testing.T) {
		t.Parallel()

		loaded, loadedDB, _ := newStore(kv.NewInMemory())
		reset, resetDB, _ := newStore(kv.NewInMemory())

		require.NoError(t, loaded.Load(ctx))
		require.NoError(t, reset.Reset(ctx))

		assert.True(t, resetDB.Dump().Equal(loadedDB.Dump()))
	})

	t.Run("restore matching version", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		persist(t, storage, "4", `{"users":[{"id":"7","name":"Grace Hopper"}],"comments":[]}`)
		store, db, _ := newStore(storage)

		err := store.Load(ctx)
		assert.NoError(t, err)

		assert.True(t, customFixtures().Equal(db.Dump()))

		snapshot, _ := persisted(t, storage)
		assert.True(t, customFixtures().Equal(snapshot))
	})

	t.Run("version mismatch keeps defaults", func(t *testing.T) {
		t.Parallel()

		for _, v := range []string{"3", "5", "", "04", " 4", "four"} {
			storage := kv.NewInMemory()
			persist(t, storage, v, `{"users":[{"id":"7","name":"Grace Hopper"}]}`)
			store, db, dispatcher := newStore(storage)

			err := store.Load(ctx)
			assert.NoError(t, err)

			assert.True(t, defaultFixtures().Equal(db.Dump()), "version: %q", v)
			assert.Equal(t, 2, storage.Writes(), "storage is not touched")
			assert.Equal(t, 1, dispatcher.Len())
		}
	})

	t.Run("missing version keeps defaults", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		require.NoError(t, storage.Set(ctx, fixturestore.DefaultDataKey, `{"users":[]}`))
		store, db, _ := newStore(storage)

		err := store.Load(ctx)
		assert.NoError(t, err)
		assert.True(t, defaultFixtures().Equal(db.Dump()))
	})

	t.Run("empty data keeps defaults", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		persist(t, storage, "4", "")
		store, db, _ := newStore(storage)

		err := store.Load(ctx)
		assert.NoError(t, err)
		assert.True(t, defaultFixtures().Equal(db.Dump()))
	})

	t.Run("malformed data is discarded", func(t *testing.T) {
		t.Parallel()

		for _, data := range []string{"{not json", "null", "[]", `{"users":{}}`} {
			storage := kv.NewInMemory()
			persist(t, storage, "4", data)
			logger := alog.Test(t)
			store, db, dispatcher := newStore(storage, fixturestore.WithLogger(logger.Logger))

			err := store.Load(ctx)
			assert.NoError(t, err)

			assert.True(t, defaultFixtures().Equal(db.Dump()), "data: %q", data)
			assert.Equal(t, 2, storage.Writes(), "storage is not touched")
			assert.Equal(t, 1, dispatcher.Len(), "still saves after requests")
			logger.Contains("discard malformed mirror")
		}
	})

	t.Run("load twice", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		store, _, dispatcher := newStore(storage)

		err := store.Load(ctx)
		assert.NoError(t, err)

		err = store.Load(ctx)
		assert.ErrorIs(t, err, fixturestore.ErrAlreadyLoaded)
		assert.Equal(t, 1, dispatcher.Len(), "listener is registered only once")

		err = dispatcher.Handled(ctx, anyRequest)
		assert.NoError(t, err)
		assert.Equal(t, 2, storage.Writes(), "one save per request")
	})

	t.Run("storage fails to read", func(t *testing.T) {
		t.Parallel()

		storage := newFailingStorage()
		storage.setFailing(true, false)
		store, db, dispatcher := newStore(storage)

		err := store.Load(ctx)
		assert.ErrorIs(t, err, fixturestore.ErrLoad)
		assert.ErrorIs(t, err, errTest)

		assert.False(t, store.Loaded())
		assert.Equal(t, 0, dispatcher.Len())
		assert.True(t, defaultFixtures().Equal(db.Dump()))
	})

	t.Run("storage fails to write restored data", func(t *testing.T) {
		t.Parallel()

		storage := newFailingStorage()
		persist(t, storage, "4", `{"users":[]}`)
		storage.setFailing(false, true)
		store, db, dispatcher := newStore(storage)

		err := store.Load(ctx)
		assert.ErrorIs(t, err, fixturestore.ErrSave)
		assert.True(t, store.Loaded(), "a failed write must not block the start")
		assert.Equal(t, 1, dispatcher.Len())
		assert.Equal(t, []string{"users"}, db.Names(), "restored data is kept in memory")
		assert.Equal(t, 0, db.Collection("users").Len())

		storage.setFailing(false, false)
		err = dispatcher.Handled(ctx, anyRequest)
		assert.NoError(t, err)

		snapshot, v := persisted(t, storage)
		assert.Equal(t, "4", v)
		assert.True(t, db.Dump().Equal(snapshot), "next request saves again")

		err = store.Load(ctx)
		assert.ErrorIs(t, err, fixturestore.ErrAlreadyLoaded)
	})
}

func TestStore_SaveAfterRequest(t *testing.T) {
	t.Parallel()

	t.Run("no save before load", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		_, _, dispatcher := newStore(storage)

		err := dispatcher.Handled(ctx, anyRequest)
		assert.NoError(t, err)
		assert.Equal(t, 0, storage.Writes())
	})

	t.Run("one save per handled request", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		store, db, dispatcher := newStore(storage)
		require.NoError(t, store.Load(ctx))

		_, err := db.Collection("users").Insert(fixture.Record{"name": "Grace Hopper"})
		require.NoError(t, err)
		assert.Equal(t, 0, storage.Writes(), "changing the db alone does not save")

		err = dispatcher.Handled(ctx, anyRequest)
		assert.NoError(t, err)
		assert.Equal(t, 2, storage.Writes(), "version and data are written once")

		snapshot, _ := persisted(t, storage)
		assert.True(t, db.Dump().Equal(snapshot))

		users, _ := snapshot.Table("users")
		assert.Len(t, users.Records, 3)
	})

	t.Run("restored data is saved again", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		persist(t, storage, "4", `{"users":[{"id":"7","name":"Grace Hopper"}],"comments":[]}`)
		store, db, dispatcher := newStore(storage)
		require.NoError(t, store.Load(ctx))

		require.NoError(t, db.Collection("users").Remove("7"))
		require.NoError(t, dispatcher.Handled(ctx, anyRequest))

		snapshot, _ := persisted(t, storage)
		users, _ := snapshot.Table("users")
		assert.Empty(t, users.Records)
	})

	t.Run("save fails", func(t *testing.T) {
		t.Parallel()

		storage := newFailingStorage()
		logger := alog.Test(t)
		store, _, dispatcher := newStore(storage, fixturestore.WithLogger(logger.Logger))
		require.NoError(t, store.Load(ctx))

		storage.setFailing(false, true)

		err := dispatcher.Handled(ctx, anyRequest)
		assert.ErrorIs(t, err, fixturestore.ErrSave)
		logger.Contains("could not mirror fixtures after request")
		logger.Contains("path=/api/users")
	})

	t.Run("close stops saving", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		store, _, dispatcher := newStore(storage)
		require.NoError(t, store.Load(ctx))

		store.Close()
		store.Close()

		err := dispatcher.Handled(ctx, anyRequest)
		assert.NoError(t, err)
		assert.Equal(t, 0, storage.Writes())
		assert.Equal(t, 0, dispatcher.Len())
	})

	t.Run("parallel requests", func(t *testing.T) {
		t.Parallel()

		storage := kv.NewInMemory()
		store, db, dispatcher := newStore(storage)
		require.NoError(t, store.Load(ctx))

		const routines = 20

		wg := sync.WaitGroup{}
		wg.Add(routines)

		for range routines {
			go func() {
				_, err := db.Collection("posts").Insert(fixture.Record{"title": "parallel"})
				assert.NoError(t, err)

				err = dispatcher.Handled(ctx, anyRequest)
				assert.NoError(t, err)

				wg.Done()
			}()
		}

		wg.Wait()

		snapshot, _ := persisted(t, storage)
		assert.True(t, db.Dump().Equal(snapshot))
		assert.Equal(t, routines*2, storage.Writes())
	})
}

func TestStore_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	storage := kv.NewInMemory()
	persist(t, storage, "4", "{not json")
	store, _, dispatcher := newStore(storage, fixturestore.WithMetrics(reg))

	require.NoError(t, store.Load(ctx))
	require.NoError(t, dispatcher.Handled(ctx, anyRequest))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP fixturedb_snapshots_discarded_total Number of persisted snapshots ignored, because they could not be parsed.
# TYPE fixturedb_snapshots_discarded_total counter
fixturedb_snapshots_discarded_total 1
# HELP fixturedb_snapshots_saved_total Number of snapshots written to the durable storage.
# TYPE fixturedb_snapshots_saved_total counter
fixturedb_snapshots_saved_total 1
`), "fixturedb_snapshots_discarded_total", "fixturedb_snapshots_saved_total")
	assert.NoError(t, err)
}

func TestStore_Tracing(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	store, _, dispatcher := newStore(kv.NewInMemory(), fixturestore.WithTracerProvider(tp))

	require.NoError(t, store.Load(ctx))
	require.NoError(t, dispatcher.Handled(ctx, anyRequest))

	names := []string{}
	for _, s := range recorder.Ended() {
		names = append(names, s.Name())
	}

	assert.Equal(t, []string{"fixturestore.load", "fixturestore.save"}, names)
}
