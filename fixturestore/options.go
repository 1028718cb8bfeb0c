package fixturestore

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-arrower/fixturedb/fixture"
	"github.com/go-arrower/fixturedb/kv"
)

// DefaultVersion is used, if no version is set via WithVersion.
const DefaultVersion = 1

//nolint:gochecknoglobals // keys are fixed, so existing mirrors can be read
var (
	DefaultVersionKey = kv.NewKey("mirage", "db", "version")
	DefaultDataKey    = kv.NewKey("mirage", "db", "data")
)

// Option configures a Store.
type Option func(*Store)

// WithVersion sets the version marker. Increase it, every time the shape
// of the data changes, so that all persisted mirrors are ignored.
func WithVersion(version int) Option {
	return func(s *Store) {
		s.version = version
	}
}

// WithDefaults sets the data used by Reset.
// It is expected to be the same data the Database got initialised with.
func WithDefaults(defaults fixture.Snapshot) Option {
	return func(s *Store) {
		s.defaults = defaults.Clone()
	}
}

// WithKeys overwrites the keys the version and the data are persisted under.
func WithKeys(version kv.Key, data kv.Key) Option {
	return func(s *Store) {
		s.versionKey = version
		s.dataKey = data
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Store) {
		if tp != nil {
			s.tracer = tp.Tracer("github.com/go-arrower/fixturedb/fixturestore")
		}
	}
}

// WithMetrics registers the metrics of the Store at reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Store) {
		if reg != nil {
			s.metrics = newMetrics(reg)
		}
	}
}
