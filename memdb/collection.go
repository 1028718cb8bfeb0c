package memdb

import (
	"fmt"
	"strconv"

	"github.com/go-arrower/fixturedb/fixture"
)

// Collection is a named, ordered set of records inside a DB.
// All returned records are copies; change them through the Collection methods.
type Collection struct {
	db *DB

	name      string
	records   []fixture.Record
	currentID int
}

func (c *Collection) Name() string {
	return c.name
}

// All returns all records in insertion order.
func (c *Collection) All() []fixture.Record {
	c.db.Lock()
	defer c.db.Unlock()

	return cloneAll(c.records)
}

func (c *Collection) Len() int {
	c.db.Lock()
	defer c.db.Unlock()

	return len(c.records)
}

func (c *Collection) Find(id string) (fixture.Record, error) {
	c.db.Lock()
	defer c.db.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("%s %s: %w", c.name, id, ErrNotFound)
	}

	return fixture.CloneRecord(c.records[i]), nil
}

// Where returns all records whose attributes match all attributes in query.
// Values are compared by their text representation, so a query coming from
// an URL matches numbers, too.
func (c *Collection) Where(query map[string]any) []fixture.Record {
	c.db.Lock()
	defer c.db.Unlock()

	result := []fixture.Record{}

	for _, r := range c.records {
		if matches(r, query) {
			result = append(result, fixture.CloneRecord(r))
		}
	}

	return result
}

// Insert adds the record to the collection and returns it with its id.
// If the record has no id, a new one is assigned.
func (c *Collection) Insert(record fixture.Record) (fixture.Record, error) {
	c.db.Lock()
	defer c.db.Unlock()

	rec := fixture.CloneRecord(record)
	if rec == nil {
		rec = fixture.Record{}
	}

	id, hasID := idOf(rec)
	if !hasID {
		id = c.nextID()
		rec[IDField] = id
	}

	if c.indexOf(id) >= 0 {
		return nil, fmt.Errorf("%s %s: %w", c.name, id, ErrAlreadyExists)
	}

	c.track(id)
	c.records = append(c.records, rec)

	return fixture.CloneRecord(rec), nil
}

// Update merges attrs into the record with the given id and returns the result.
// The id of a record cannot be changed.
func (c *Collection) Update(id string, attrs fixture.Record) (fixture.Record, error) {
	if id == "" {
		return nil, ErrMissingID
	}

	c.db.Lock()
	defer c.db.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("%s %s: %w", c.name, id, ErrNotFound)
	}

	rec := c.records[i]
	for k, v := range fixture.CloneRecord(attrs) {
		if k == IDField {
			continue
		}

		rec[k] = v
	}

	return fixture.CloneRecord(rec), nil
}

func (c *Collection) Remove(id string) error {
	c.db.Lock()
	defer c.db.Unlock()

	i := c.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%s %s: %w", c.name, id, ErrNotFound)
	}

	c.records = append(c.records[:i], c.records[i+1:]...)

	return nil
}

// Clear removes all records, but keeps the collection.
func (c *Collection) Clear() {
	c.db.Lock()
	defer c.db.Unlock()

	c.records = []fixture.Record{}
}

func (c *Collection) indexOf(id string) int {
	for i, r := range c.records {
		if rid, ok := idOf(r); ok && rid == id {
			return i
		}
	}

	return -1
}

// nextID returns a new id, the caller has to hold the lock.
func (c *Collection) nextID() string {
	if c.db.uuidIdentities {
		return newUUID()
	}

	for {
		c.currentID++

		id := strconv.Itoa(c.currentID)
		if c.indexOf(id) < 0 {
			return id
		}
	}
}

// track keeps the integer identity ahead of numeric ids inserted from outside.
func (c *Collection) track(id string) {
	n, err := strconv.Atoi(id)
	if err != nil {
		return
	}

	if n > c.currentID {
		c.currentID = n
	}
}

func matches(r fixture.Record, query map[string]any) bool {
	for k, want := range query {
		got, ok := r[k]
		if !ok {
			return false
		}

		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}

	return true
}
