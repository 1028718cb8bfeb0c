package fixture

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrLoadFixtures   = errors.New("could not load fixtures")
	ErrDuplicateTable = errors.New("table defined more than once")
)

// LoadDir builds a Snapshot out of the fixture files in dir.
// Every file holds one table, named after the file without its extension.
// Supported are JSON (.json) and YAML (.yaml, .yml) files containing a list of records.
// Tables are ordered by file name; other files are ignored.
func LoadDir(fsys fs.FS, dir string) (Snapshot, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrLoadFixtures, err)
	}

	snapshot := Snapshot{Tables: []Table{}}
	seen := map[string]string{}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		ext := path.Ext(e.Name())
		if !isFixtureFile(ext) {
			continue
		}

		name := strings.TrimSuffix(e.Name(), ext)
		if other, exists := seen[name]; exists {
			return Snapshot{}, fmt.Errorf("%w: %s in %s and %s", ErrDuplicateTable, name, other, e.Name())
		}

		seen[name] = e.Name()

		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: %v", ErrLoadFixtures, err)
		}

		records, err := decodeRecords(ext, data)
		if err != nil {
			return Snapshot{}, fmt.Errorf("%w: %s: %v", ErrLoadFixtures, e.Name(), err)
		}

		snapshot.Tables = append(snapshot.Tables, Table{Name: name, Records: records})
	}

	return snapshot, nil
}

func isFixtureFile(ext string) bool {
	switch ext {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func decodeRecords(ext string, data []byte) ([]Record, error) {
	records := []Record{}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err //nolint:wrapcheck // wrapped by caller
		}
	default:
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, err //nolint:wrapcheck // wrapped by caller
		}
	}

	if records == nil { // empty yaml document
		records = []Record{}
	}

	return records, nil
}
