// Package memdb is an in-memory fixture database.
//
// It holds named collections of records, that are identified by their `id` attribute.
// The database as a whole can be dumped into and loaded from a fixture.Snapshot,
// so it can be mirrored into a durable storage.
//
// Warning: the consistency of DB is not on par with ACID guarantees of a RDBMS.
// It is intended for mocking and local development.
package memdb

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/go-arrower/fixturedb/fixture"
)

// IDField is the attribute used as the primary key of every record.
const IDField = "id"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("exists already")
	ErrMissingID     = errors.New("missing id")
)

type Option func(*config)

type config struct {
	uuidIdentities bool
}

// WithUUIDIdentities generates UUIDs for new records without an id.
// By default, new ids are incrementing integers, formatted as text.
func WithUUIDIdentities() Option {
	return func(c *config) {
		c.uuidIdentities = true
	}
}

// New returns an empty DB.
func New(opts ...Option) *DB {
	db := &DB{
		Mutex:       &sync.Mutex{},
		collections: []*Collection{},
		config:      config{uuidIdentities: false},
	}

	for _, opt := range opts {
		opt(&db.config)
	}

	return db
}

// DB is a set of ordered, named collections.
// It is safe for concurrent use.
type DB struct {
	// Mutex is shared with all collections of the DB.
	*sync.Mutex

	collections []*Collection
	config
}

// Dump returns a copy of all data, in the order the collections got created.
func (db *DB) Dump() fixture.Snapshot {
	db.Lock()
	defer db.Unlock()

	snapshot := fixture.Snapshot{Tables: make([]fixture.Table, 0, len(db.collections))}
	for _, c := range db.collections {
		snapshot.Tables = append(snapshot.Tables, fixture.Table{
			Name:    c.name,
			Records: cloneAll(c.records),
		})
	}

	return snapshot
}

// EmptyData removes all collections and their records.
func (db *DB) EmptyData() {
	db.Lock()
	defer db.Unlock()

	db.collections = []*Collection{}
}

// LoadData inserts all records of the snapshot into the collections of the same name.
// Missing collections are created. Records keep their id; records without one get a new id.
// A record with an id that exists already replaces the existing one, keeping its position.
// This holds for duplicate ids inside the snapshot, too: Dump then returns fewer records than loaded.
func (db *DB) LoadData(snapshot fixture.Snapshot) {
	db.Lock()
	defer db.Unlock()

	for _, t := range snapshot.Tables {
		c := db.collection(t.Name)

		for _, r := range t.Records {
			rec := fixture.CloneRecord(r)
			if rec == nil {
				rec = fixture.Record{}
			}

			id, hasID := idOf(rec)
			if !hasID {
				id = c.nextID()
				rec[IDField] = id
			}

			c.track(id)

			if i := c.indexOf(id); i >= 0 {
				c.records[i] = rec
				continue
			}

			c.records = append(c.records, rec)
		}
	}
}

// Collection returns the collection with the given name. It is created, if it does not exist yet.
func (db *DB) Collection(name string) *Collection {
	db.Lock()
	defer db.Unlock()

	return db.collection(name)
}

// Names returns the names of all collections in order of creation.
func (db *DB) Names() []string {
	db.Lock()
	defer db.Unlock()

	names := make([]string, 0, len(db.collections))
	for _, c := range db.collections {
		names = append(names, c.name)
	}

	return names
}

// HasCollection reports whether a collection with the given name exists.
func (db *DB) HasCollection(name string) bool {
	db.Lock()
	defer db.Unlock()

	for _, c := range db.collections {
		if c.name == name {
			return true
		}
	}

	return false
}

func (db *DB) collection(name string) *Collection {
	for _, c := range db.collections {
		if c.name == name {
			return c
		}
	}

	c := &Collection{
		db:        db,
		name:      name,
		records:   []fixture.Record{},
		currentID: 0,
	}
	db.collections = append(db.collections, c)

	return c
}

func idOf(r fixture.Record) (string, bool) {
	v, ok := r[IDField]
	if !ok || v == nil {
		return "", false
	}

	id := formatID(v)

	return id, id != ""
}

func formatID(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return fmt.Sprint(id)
	}
}

func cloneAll(records []fixture.Record) []fixture.Record {
	cp := make([]fixture.Record, 0, len(records))
	for _, r := range records {
		cp = append(cp, fixture.CloneRecord(r))
	}

	return cp
}

func newUUID() string {
	return uuid.New().String()
}
