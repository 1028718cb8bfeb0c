package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestSuite runs the behaviour every Storage has to fulfil against the implementation
// returned by newStorage. newStorage is called once per test case.
func TestSuite(t *testing.T, newStorage func() Storage) { //nolint:tparallel // t.Parallel can only be called ones! The caller decides
	t.Helper()

	if newStorage == nil {
		t.Fatal("Storage constructor is nil")
	}

	var (
		ctx         = context.Background()
		key         = NewKey("mirage", "db", "data")
		keyNotFound = NewKey("mirage", "db", "non-existing")
	)

	t.Run("Set", func(t *testing.T) {
		t.Parallel()

		storage := newStorage()

		t.Run("set", func(t *testing.T) {
			err := storage.Set(ctx, key, `{"users":[]}`)
			assert.NoError(t, err)
		})

		t.Run("overwrite", func(t *testing.T) {
			err := storage.Set(ctx, key, "first")
			assert.NoError(t, err)

			err = storage.Set(ctx, key, "second")
			assert.NoError(t, err)

			val, err := storage.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, "second", val)
		})

		t.Run("empty value", func(t *testing.T) {
			err := storage.Set(ctx, key, "")
			assert.NoError(t, err)

			val, err := storage.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, "", val)
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Parallel()

		storage := newStorage()

		t.Run("get", func(t *testing.T) {
			err := storage.Set(ctx, key, "4")
			assert.NoError(t, err)

			val, err := storage.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, "4", val)
		})

		t.Run("not found", func(t *testing.T) {
			val, err := storage.Get(ctx, keyNotFound)
			assert.ErrorIs(t, err, ErrNotFound)
			assert.Empty(t, val)
		})

		t.Run("keys are independent", func(t *testing.T) {
			other := NewKey("mirage", "db", "version")

			err := storage.Set(ctx, key, "data")
			assert.NoError(t, err)
			err = storage.Set(ctx, other, "version")
			assert.NoError(t, err)

			val, _ := storage.Get(ctx, key)
			assert.Equal(t, "data", val)
			val, _ = storage.Get(ctx, other)
			assert.Equal(t, "version", val)
		})
	})

	t.Run("Delete", func(t *testing.T) {
		t.Parallel()

		storage := newStorage()

		t.Run("delete", func(t *testing.T) {
			err := storage.Set(ctx, key, "value")
			assert.NoError(t, err)

			err = storage.Delete(ctx, key)
			assert.NoError(t, err)

			_, err = storage.Get(ctx, key)
			assert.ErrorIs(t, err, ErrNotFound)
		})

		t.Run("delete non existing", func(t *testing.T) {
			err := storage.Delete(ctx, keyNotFound)
			assert.NoError(t, err)
		})
	})
}
