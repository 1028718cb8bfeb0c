package fixturedb_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-arrower/fixturedb"
	"github.com/go-arrower/fixturedb/aassert"
	"github.com/go-arrower/fixturedb/kv"
)

func TestDefaultViper(t *testing.T) {
	t.Parallel()

	vip := fixturedb.DefaultViper()
	assert.NotEmpty(t, vip)

	// Keep the defaults in sync with the flags and the README.

	assert.Equal(t, fixturedb.LocalEnv, fixturedb.Environment(vip.GetString("environment")))

	assert.Equal(t, 1, vip.GetInt("fixtures.version"))
	assert.Equal(t, "fixtures", vip.GetString("fixtures.dir"))

	assert.Equal(t, kv.DriverFile, vip.GetString("storage.driver"))
	assert.Equal(t, ".fixturedb/mirror.json", vip.GetString("storage.path"))
	assert.Equal(t, 5, vip.GetInt("storage.max_retries"))

	assert.Equal(t, "localhost:6379", vip.GetString("storage.redis.addr"))
	assert.Equal(t, "", vip.GetString("storage.redis.password"))
	assert.Equal(t, 0, vip.GetInt("storage.redis.db"))

	assert.Equal(t, "fixturedb", vip.GetString("storage.postgres.user"))
	assert.Equal(t, "secret", vip.GetString("storage.postgres.password"))
	assert.Equal(t, "fixturedb", vip.GetString("storage.postgres.database"))
	assert.Equal(t, "localhost", vip.GetString("storage.postgres.host"))
	assert.Equal(t, 5432, vip.GetInt("storage.postgres.port"))
	assert.Equal(t, "disable", vip.GetString("storage.postgres.ssl_mode"))
	assert.Equal(t, 10, vip.GetInt("storage.postgres.max_conns"))

	assert.Equal(t, 8080, vip.GetInt("http.port"))
	assert.Equal(t, "/api", vip.GetString("http.prefix"))

	assert.Equal(t, "", vip.GetString("otel.host"))
	assert.Equal(t, 4317, vip.GetInt("otel.port"))

	aassert.NumFields(t, 26, fixturedb.Config{}, "add a default for the new field")
	assert.Len(t, vip.AllKeys(), 20, "every field of Config has a default")
}

func TestViper_Unmarshal(t *testing.T) {
	t.Parallel()

	t.Run("defaults", func(t *testing.T) {
		t.Parallel()

		conf := fixturedb.Config{}

		err := fixturedb.DefaultViper().Unmarshal(&conf)
		require.NoError(t, err)
		assert.Equal(t, fixturedb.LocalEnv, conf.Environment)
		assert.Equal(t, fixturedb.Driver(kv.DriverFile), conf.Storage.Driver)
		assert.Equal(t, "secret", conf.Storage.Postgres.Password.Secret())
		assert.True(t, conf.Storage.Redis.Password.IsEmpty())
	})

	t.Run("config file", func(t *testing.T) {
		t.Parallel()

		vip := fixturedb.DefaultViper()
		vip.SetConfigFile("./testdata/config/test-config.yaml")
		require.NoError(t, vip.ReadInConfig())

		conf := fixturedb.Config{}

		err := vip.Unmarshal(&conf)
		require.NoError(t, err)
		assert.Equal(t, fixturedb.TestEnv, conf.Environment)
		assert.Equal(t, 4, conf.Fixtures.Version)
		assert.Equal(t, "./testdata/fixtures", conf.Fixtures.Dir)
		assert.Equal(t, fixturedb.Driver(kv.DriverRedis), conf.Storage.Driver)
		assert.Equal(t, uint64(2), conf.Storage.MaxRetries)
		assert.Equal(t, "redis:6379", conf.Storage.Redis.Addr)
		assert.Equal(t, 3, conf.Storage.Redis.DB)
		assert.Equal(t, 3000, conf.HTTP.Port)
		assert.Equal(t, "/api", conf.HTTP.Prefix, "should keep defaults not set in the file")
	})

	t.Run("unmarshal secrets", func(t *testing.T) {
		t.Parallel()

		vip := fixturedb.DefaultViper()
		vip.SetConfigFile("./testdata/config/test-config.yaml")
		require.NoError(t, vip.ReadInConfig())

		conf := fixturedb.Config{}

		err := vip.Unmarshal(&conf)
		require.NoError(t, err)
		assert.Equal(t, "my-redis-secret", conf.Storage.Redis.Password.Secret())
		assert.Equal(t, "my-db-secret", conf.Storage.Postgres.Password.Secret())
		assert.Equal(t, "******", conf.Storage.Redis.Password.String())
	})

	t.Run("invalid environment", func(t *testing.T) {
		t.Parallel()

		vip := fixturedb.DefaultViper()
		vip.SetConfigFile("./testdata/config/invalid-environment.yaml")
		require.NoError(t, vip.ReadInConfig())

		err := vip.Unmarshal(&fixturedb.Config{})
		assert.ErrorIs(t, err, fixturedb.ErrConfigLoadFailed)
		assert.Contains(t, err.Error(), "use one of: local, test, dev, prod")
	})

	t.Run("invalid driver", func(t *testing.T) {
		t.Parallel()

		vip := fixturedb.DefaultViper()
		vip.SetConfigFile("./testdata/config/invalid-driver.yaml")
		require.NoError(t, vip.ReadInConfig())

		err := vip.Unmarshal(&fixturedb.Config{})
		assert.ErrorIs(t, err, fixturedb.ErrConfigLoadFailed)
		assert.Contains(t, err.Error(), "use one of: memory, file, sqlite, redis, postgres")
	})
}

func TestStorage_KVOptions(t *testing.T) {
	t.Parallel()

	vip := fixturedb.DefaultViper()
	vip.SetConfigFile("./testdata/config/test-config.yaml")
	require.NoError(t, vip.ReadInConfig())

	conf := fixturedb.Config{}
	require.NoError(t, vip.Unmarshal(&conf))

	opts := conf.Storage.KVOptions()
	assert.Equal(t, kv.DriverRedis, opts.Driver)
	assert.Equal(t, "my-redis-secret", opts.RedisPassword)
	assert.Equal(t, "my-db-secret", opts.PostgresPassword)
	assert.Equal(t, 2, opts.PostgresMaxConns)
	assert.Equal(t, uint64(2), opts.MaxRetries)
}
