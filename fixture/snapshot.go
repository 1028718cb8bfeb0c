// Package fixture contains the data that is mirrored between
// the in-memory fixture database and the durable storage.
//
// A Snapshot is treated as opaque by everything that persists it:
// it is dumped, serialised and loaded again as a whole.
package fixture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Record is a single row of a Table.
type Record map[string]any

// Table is a named, ordered sequence of records.
type Table struct {
	Name    string
	Records []Record
}

// Snapshot is the full content of a fixture database at a point in time.
// The order of the tables is kept when marshalled to and from JSON.
type Snapshot struct {
	Tables []Table
}

// New returns a Snapshot containing the given tables in order.
func New(tables ...Table) Snapshot {
	return Snapshot{Tables: tables}
}

// Parse decodes the JSON form of a Snapshot.
// Every failure is reported as ErrMalformedSnapshot, so callers can decide
// to fall back to other data.
func Parse(text string) (Snapshot, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed == "null" {
		return Snapshot{}, fmt.Errorf("%w: no data", ErrMalformedSnapshot)
	}

	var snapshot Snapshot

	err := json.Unmarshal([]byte(trimmed), &snapshot)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	return snapshot, nil
}

// Table returns the table with the given name.
func (s Snapshot) Table(name string) (Table, bool) {
	for _, t := range s.Tables {
		if t.Name == name {
			return t, true
		}
	}

	return Table{}, false
}

// Names returns the table names in order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}

	return names
}

// IsEmpty reports whether the snapshot contains no records at all.
func (s Snapshot) IsEmpty() bool {
	for _, t := range s.Tables {
		if len(t.Records) > 0 {
			return false
		}
	}

	return true
}

// Equal reports whether both snapshots serialise to the same JSON.
// It compares by value, so an int 1 and a float64 1 are considered equal,
// as they are after a round trip through the durable storage.
func (s Snapshot) Equal(other Snapshot) bool {
	a, err := json.Marshal(s)
	if err != nil {
		return false
	}

	b, err := json.Marshal(other)
	if err != nil {
		return false
	}

	return bytes.Equal(a, b)
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	if s.Tables == nil {
		return Snapshot{}
	}

	tables := make([]Table, 0, len(s.Tables))
	for _, t := range s.Tables {
		tables = append(tables, Table{Name: t.Name, Records: cloneRecords(t.Records)})
	}

	return Snapshot{Tables: tables}
}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	buf := bytes.Buffer{}
	buf.WriteByte('{')

	for i, t := range s.Tables {
		if i > 0 {
			buf.WriteByte(',')
		}

		name, err := json.Marshal(t.Name)
		if err != nil {
			return nil, err //nolint:wrapcheck // export the underlying error
		}

		records := t.Records
		if records == nil {
			records = []Record{}
		}

		recs, err := json.Marshal(records)
		if err != nil {
			return nil, fmt.Errorf("could not marshal table %s: %w", t.Name, err)
		}

		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(recs)
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func (s *Snapshot) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err //nolint:wrapcheck // export the underlying error
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected an object of tables, got %v", tok) //nolint:err113 // dynamic error
	}

	tables := []Table{}
	index := map[string]int{}

	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return err //nolint:wrapcheck
		}

		name, _ := tok.(string) // object keys are always strings

		var records []Record
		if err := dec.Decode(&records); err != nil {
			return fmt.Errorf("could not decode table %s: %w", name, err)
		}

		// a repeated key overwrites the earlier value but keeps its position
		if i, exists := index[name]; exists {
			tables[i].Records = records
			continue
		}

		index[name] = len(tables)
		tables = append(tables, Table{Name: name, Records: records})
	}

	if _, err := dec.Token(); err != nil {
		return err //nolint:wrapcheck
	}

	s.Tables = tables

	return nil
}

func cloneRecords(records []Record) []Record {
	if records == nil {
		return nil
	}

	cp := make([]Record, 0, len(records))
	for _, r := range records {
		cp = append(cp, CloneRecord(r))
	}

	return cp
}

// CloneRecord returns a deep copy of r.
func CloneRecord(r Record) Record {
	if r == nil {
		return nil
	}

	cp := make(Record, len(r))
	for k, v := range r {
		cp[k] = cloneValue(v)
	}

	return cp
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(val))
		for k, v := range val {
			cp[k] = cloneValue(v)
		}

		return cp
	case Record:
		return CloneRecord(val)
	case []any:
		cp := make([]any, len(val))
		for i, v := range val {
			cp[i] = cloneValue(v)
		}

		return cp
	default:
		return v
	}
}
