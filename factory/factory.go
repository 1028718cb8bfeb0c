// Package factory builds fake records, e.g. to fill a fixture database with
// more data than is practical to write by hand.
package factory

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/go-arrower/fixturedb/fixture"
	"github.com/go-arrower/fixturedb/memdb"
)

var ErrUnknownGenerator = errors.New("unknown generator")

// Generator returns the value of one attribute. n is the position of the record being built, starting at 0.
type Generator func(faker *gofakeit.Faker, n int) any

// New returns a Factory building records with the given attributes.
// Use a seed other than 0 to get reproducible records.
func New(seed int64, attrs map[string]Generator) *Factory {
	return &Factory{
		faker: gofakeit.New(seed),
		attrs: attrs,
	}
}

// Factory builds records out of attribute generators.
type Factory struct {
	faker *gofakeit.Faker
	attrs map[string]Generator
}

// Build returns n new records. They have no id, so a collection assigns one on insert.
func (f *Factory) Build(n int) []fixture.Record {
	records := make([]fixture.Record, 0, n)

	for i := range n {
		r := fixture.Record{}
		for _, name := range f.names() {
			r[name] = f.attrs[name](f.faker, i)
		}

		records = append(records, r)
	}

	return records
}

// Create builds n records and inserts them into c.
func (f *Factory) Create(c *memdb.Collection, n int) ([]fixture.Record, error) {
	created := make([]fixture.Record, 0, n)

	for _, r := range f.Build(n) {
		rec, err := c.Insert(r)
		if err != nil {
			return created, fmt.Errorf("could not create %s: %w", c.Name(), err)
		}

		created = append(created, rec)
	}

	return created, nil
}

// names returns the attribute names sorted, so the faker is called in a stable order.
func (f *Factory) names() []string {
	names := make([]string, 0, len(f.attrs))
	for name := range f.attrs {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Generators returns all generators that can be referenced by name, e.g. from the command line.
func Generators() map[string]Generator {
	return map[string]Generator{
		"name":      func(f *gofakeit.Faker, _ int) any { return f.Name() },
		"firstName": func(f *gofakeit.Faker, _ int) any { return f.FirstName() },
		"lastName":  func(f *gofakeit.Faker, _ int) any { return f.LastName() },
		"email":     func(f *gofakeit.Faker, _ int) any { return f.Email() },
		"username":  func(f *gofakeit.Faker, _ int) any { return f.Username() },
		"company":   func(f *gofakeit.Faker, _ int) any { return f.Company() },
		"city":      func(f *gofakeit.Faker, _ int) any { return f.City() },
		"phone":     func(f *gofakeit.Faker, _ int) any { return f.Phone() },
		"url":       func(f *gofakeit.Faker, _ int) any { return f.URL() },
		"title":     func(f *gofakeit.Faker, _ int) any { return f.Sentence(4) }, //nolint:mnd
		"sentence":  func(f *gofakeit.Faker, _ int) any { return f.Sentence(10) }, //nolint:mnd
		"paragraph": func(f *gofakeit.Faker, _ int) any { return f.Paragraph(1, 4, 10, " ") }, //nolint:mnd
		"bool":      func(f *gofakeit.Faker, _ int) any { return f.Bool() },
		"number":    func(f *gofakeit.Faker, _ int) any { return f.Number(1, 1000) }, //nolint:mnd
		"date":      func(f *gofakeit.Faker, _ int) any { return f.Date().UTC().Format("2006-01-02") },
		"uuid":      func(f *gofakeit.Faker, _ int) any { return f.UUID() },
		"sequence":  func(_ *gofakeit.Faker, n int) any { return n + 1 },
	}
}

// ParseAttrs turns a list of attr=generator pairs, e.g. "name=name", "mail=email",
// into attribute generators.
func ParseAttrs(pairs []string) (map[string]Generator, error) {
	generators := Generators()
	attrs := make(map[string]Generator, len(pairs))

	for _, p := range pairs {
		attr, gen, found := strings.Cut(p, "=")
		if !found {
			gen = attr
		}

		g, ok := generators[gen]
		if !ok || attr == "" {
			return nil, fmt.Errorf("%w: %s", ErrUnknownGenerator, p)
		}

		attrs[attr] = g
	}

	return attrs, nil
}
