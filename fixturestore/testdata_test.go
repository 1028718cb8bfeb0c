package fixturestore_test

import (
	"context"
	"errors"
	"sync"

	"github.com/go-arrower/fixturedb/fixture"
	"github.com/go-arrower/fixturedb/kv"
)

var (
	ctx     = context.Background()
	errTest = errors.New("some error")
)

func defaultFixtures() fixture.Snapshot {
	return fixture.New(
		fixture.Table{Name: "users", Records: []fixture.Record{
			{"id": "1", "name": "Ada Lovelace"},
			{"id": "2", "name": "Alan Turing"},
		}},
		fixture.Table{Name: "posts", Records: []fixture.Record{
			{"id": "1", "title": "Hello", "userId": "1"},
		}},
	)
}

func customFixtures() fixture.Snapshot {
	return fixture.New(
		fixture.Table{Name: "users", Records: []fixture.Record{
			{"id": "7", "name": "Grace Hopper"},
		}},
		fixture.Table{Name: "comments", Records: []fixture.Record{}},
	)
}

// failingStorage is a kv.Storage whose methods can be made to fail.
type failingStorage struct {
	*kv.InMemory

	mu      sync.Mutex
	failGet bool
	failSet bool
}

func newFailingStorage() *failingStorage {
	return &failingStorage{InMemory: kv.NewInMemory()}
}

func (s *failingStorage) Get(ctx context.Context, key kv.Key) (string, error) {
	s.mu.Lock()
	fail := s.failGet
	s.mu.Unlock()

	if fail {
		return "", errTest
	}

	return s.InMemory.Get(ctx, key)
}

func (s *failingStorage) Set(ctx context.Context, key kv.Key, value string) error {
	s.mu.Lock()
	fail := s.failSet
	s.mu.Unlock()

	if fail {
		return errTest
	}

	return s.InMemory.Set(ctx, key, value)
}

func (s *failingStorage) setFailing(get bool, set bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failGet = get
	s.failSet = set
}
