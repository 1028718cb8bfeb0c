// Package fixturedb keeps a fixture database and mirrors it into a durable storage,
// so changes survive a restart.
//
// The packages fixturestore, memdb, dispatch and kv hold the building blocks,
// this package contains the configuration that wires them together.
package fixturedb

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/go-arrower/fixturedb/kv"
	"github.com/go-arrower/fixturedb/secret"
)

// Config is the configuration of a fixturedb instance.
// It is intended to be mapped by viper.
type Config struct {
	Environment Environment `mapstructure:"environment"`

	Fixtures Fixtures `mapstructure:"fixtures"`
	Storage  Storage  `mapstructure:"storage"`
	HTTP     HTTP     `mapstructure:"http"`
	OTEL     OTEL     `mapstructure:"otel"`
}

const (
	LocalEnv       Environment = "local"
	TestEnv        Environment = "test"
	DevelopmentEnv Environment = "dev"
	ProductionEnv  Environment = "prod"
)

// Environments is the list of all supported environments.
func Environments() []Environment {
	return []Environment{LocalEnv, TestEnv, DevelopmentEnv, ProductionEnv}
}

type Environment string

type Driver string

type (
	Fixtures struct {
		// Version is stored next to the data. Mirrors of other versions are ignored.
		Version int `mapstructure:"version" json:"version"`
		// Dir contains the default fixtures, one file per table.
		Dir string `mapstructure:"dir" json:"dir"`
	}

	Storage struct {
		Driver     Driver   `mapstructure:"driver"      json:"driver"`
		Path       string   `mapstructure:"path"        json:"path"`
		MaxRetries uint64   `mapstructure:"max_retries" json:"maxRetries"`
		Redis      Redis    `mapstructure:"redis"       json:"redis"`
		Postgres   Postgres `mapstructure:"postgres"    json:"postgres"`
	}

	Redis struct {
		Addr     string        `mapstructure:"addr"            json:"addr"`
		Password secret.Secret `mapstructure:"password,squash" json:"-"`
		DB       int           `mapstructure:"db"              json:"db"`
	}

	Postgres struct {
		User     string        `mapstructure:"user"            json:"user"`
		Password secret.Secret `mapstructure:"password,squash" json:"-"`
		Database string        `mapstructure:"database"        json:"database"`
		Host     string        `mapstructure:"host"            json:"host"`
		Port     int           `mapstructure:"port"            json:"port"`
		SSLMode  string        `mapstructure:"ssl_mode"        json:"sslMode"`
		MaxConns int           `mapstructure:"max_conns"       json:"maxConns"`
	}

	HTTP struct {
		Port   int    `mapstructure:"port"   json:"port"`
		Prefix string `mapstructure:"prefix" json:"prefix"`
	}

	// OTEL is the collector traces are exported to. Without a Host, nothing is exported.
	OTEL struct {
		Host string `mapstructure:"host" json:"host"`
		Port int    `mapstructure:"port" json:"port"`
	}
)

// KVOptions returns the options to open the configured storage with kv.Open.
func (s Storage) KVOptions() kv.Options {
	return kv.Options{
		Driver:           string(s.Driver),
		Path:             s.Path,
		RedisAddr:        s.Redis.Addr,
		RedisPassword:    s.Redis.Password.Secret(),
		RedisDB:          s.Redis.DB,
		PostgresUser:     s.Postgres.User,
		PostgresPassword: s.Postgres.Password.Secret(),
		PostgresDatabase: s.Postgres.Database,
		PostgresHost:     s.Postgres.Host,
		PostgresPort:     s.Postgres.Port,
		PostgresSSLMode:  s.Postgres.SSLMode,
		PostgresMaxConns: s.Postgres.MaxConns,
		MaxRetries:       s.MaxRetries,
	}
}

// DefaultViper returns a new viper instance with all default values
// from Config set.
func DefaultViper() *Viper {
	vip := viper.New()

	vip.SetDefault("environment", "local")

	vip.SetDefault("fixtures.version", 1)
	vip.SetDefault("fixtures.dir", "fixtures")

	vip.SetDefault("storage.driver", kv.DriverFile)
	vip.SetDefault("storage.path", ".fixturedb/mirror.json")
	vip.SetDefault("storage.max_retries", 5)

	vip.SetDefault("storage.redis.addr", "localhost:6379")
	vip.SetDefault("storage.redis.password", "")
	vip.SetDefault("storage.redis.db", 0)

	vip.SetDefault("storage.postgres.user", "fixturedb")
	vip.SetDefault("storage.postgres.password", "secret")
	vip.SetDefault("storage.postgres.database", "fixturedb")
	vip.SetDefault("storage.postgres.host", "localhost")
	vip.SetDefault("storage.postgres.port", 5432)
	vip.SetDefault("storage.postgres.ssl_mode", "disable")
	vip.SetDefault("storage.postgres.max_conns", 10)

	vip.SetDefault("http.port", 8080)
	vip.SetDefault("http.prefix", "/api")

	vip.SetDefault("otel.host", "")
	vip.SetDefault("otel.port", 4317)

	return &Viper{Viper: vip}
}

var ErrConfigLoadFailed = errors.New("loading configuration failed")

// Viper is a wrapper around viper.Viper.
// It overwrites Unmarshal, so that the passwords are decoded into secret.Secret
// and the enum like values are validated.
type Viper struct {
	*viper.Viper
}

func (vip *Viper) Unmarshal(config *Config) error {
	err := vip.Viper.Unmarshal(config, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		allowedHookFunc(Environments()),
		allowedHookFunc(drivers()),
	)))
	if err != nil {
		return fmt.Errorf("%w: could not decode configuration into struct: %v", ErrConfigLoadFailed, err)
	}

	secrets := map[string]*secret.Secret{
		"storage.redis.password":    &config.Storage.Redis.Password,
		"storage.postgres.password": &config.Storage.Postgres.Password,
	}

	for key, s := range secrets {
		err = vip.Viper.UnmarshalKey(key, s, viper.DecodeHook(mapstructure.TextUnmarshallerHookFunc()))
		if err != nil {
			return fmt.Errorf("%w: could not decode secret %s: %v", ErrConfigLoadFailed, key, err)
		}
	}

	return nil
}

func drivers() []Driver {
	d := []Driver{}
	for _, name := range kv.Drivers() {
		d = append(d, Driver(name))
	}

	return d
}

// allowedHookFunc rejects all values of type T that are not in allowed.
func allowedHookFunc[T ~string](allowed []T) mapstructure.DecodeHookFuncType {
	return func(_ reflect.Type, t reflect.Type, data any) (any, error) {
		if t != reflect.TypeOf(T("")) {
			return data, nil
		}

		value, ok := data.(string)
		if ok && slices.Contains(allowed, T(value)) {
			return data, nil
		}

		names := make([]string, 0, len(allowed))
		for _, a := range allowed {
			names = append(names, string(a))
		}

		return data, fmt.Errorf("value %v is not allowed, use one of: %s", data, strings.Join(names, ", ")) //nolint:err113 // dynamic list
	}
}
