package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-arrower/fixturedb/dispatch"
)

var (
	ctx        = context.Background()
	errTest    = errors.New("some error")
	anyRequest = dispatch.Request{Method: "GET", Path: "/api/users", Status: 200}
)

func TestDispatcher_Handled(t *testing.T) {
	t.Parallel()

	t.Run("no listeners", func(t *testing.T) {
		t.Parallel()

		d := dispatch.New()

		err := d.Handled(ctx, anyRequest)
		assert.NoError(t, err)
	})

	t.Run("listeners are called in order", func(t *testing.T) {
		t.Parallel()

		d := dispatch.New()
		calls := []string{}

		d.OnHandled(func(_ context.Context, req dispatch.Request) error {
			calls = append(calls, "first "+req.Path)
			return nil
		})
		d.OnHandled(func(_ context.Context, req dispatch.Request) error {
			calls = append(calls, "second "+req.Path)
			return nil
		})

		err := d.Handled(ctx, anyRequest)
		assert.NoError(t, err)
		assert.Equal(t, []string{"first /api/users", "second /api/users"}, calls)
	})

	t.Run("failing listener does not stop others", func(t *testing.T) {
		t.Parallel()

		d := dispatch.New()
		called := false

		d.OnHandled(func(_ context.Context, _ dispatch.Request) error { return errTest })
		d.OnHandled(func(_ context.Context, _ dispatch.Request) error {
			called = true
			return nil
		})

		err := d.Handled(ctx, anyRequest)
		assert.ErrorIs(t, err, errTest)
		assert.True(t, called)
	})

	t.Run("nil listener is ignored", func(t *testing.T) {
		t.Parallel()

		d := dispatch.New()
		unsubscribe := d.OnHandled(nil)
		unsubscribe()

		assert.Equal(t, 0, d.Len())
		assert.NoError(t, d.Handled(ctx, anyRequest))
	})

	t.Run("concurrent", func(t *testing.T) {
		t.Parallel()

		d := dispatch.New()
		mu := sync.Mutex{}
		count := 0

		d.OnHandled(func(_ context.Context, _ dispatch.Request) error {
			mu.Lock()
			count++
			mu.Unlock()

			return nil
		})

		const routines = 20

		wg := sync.WaitGroup{}
		wg.Add(routines)

		for range routines {
			go func() {
				_ = d.Handled(ctx, anyRequest)

				wg.Done()
			}()
		}

		wg.Wait()
		assert.Equal(t, routines, count)
	})
}

func TestDispatcher_OnHandled(t *testing.T) {
	t.Parallel()

	t.Run("unsubscribe", func(t *testing.T) {
		t.Parallel()

		d := dispatch.New()
		count := 0

		unsubscribe := d.OnHandled(func(_ context.Context, _ dispatch.Request) error {
			count++
			return nil
		})
		assert.Equal(t, 1, d.Len())

		_ = d.Handled(ctx, anyRequest)
		unsubscribe()
		unsubscribe()
		_ = d.Handled(ctx, anyRequest)

		assert.Equal(t, 1, count)
		assert.Equal(t, 0, d.Len())
	})

	t.Run("same listener twice is called twice", func(t *testing.T) {
		t.Parallel()

		d := dispatch.New()
		count := 0
		l := func(_ context.Context, _ dispatch.Request) error {
			count++
			return nil
		}

		d.OnHandled(l)
		unsubscribe := d.OnHandled(l)

		_ = d.Handled(ctx, anyRequest)
		assert.Equal(t, 2, count)

		unsubscribe()
		_ = d.Handled(ctx, anyRequest)
		assert.Equal(t, 3, count)
	})
}
