//go:build integration

// Package tests starts docker containers for the storages fixturedb mirrors into,
// so they can be used in integration tests.
package tests

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
)

var (
	ErrDockerFailure       = errors.New("docker failure")
	ErrMissingInstanceName = errors.New("missing docker instance name")
)

// RetryFunc returns the func used to connect to the started container.
// It is called repeatedly with an exponential backoff, until the service in the container is ready.
type RetryFunc func(resource *dockertest.Resource) func() error

// containers holds all containers started by StartDockerContainer, by name.
//
//nolint:gochecknoglobals
var (
	muContainers = sync.Mutex{}
	containers   = map[string]*container{}
)

type container struct {
	purge func() error
	users int
}

// GetDockerContainerInstance returns a cleanup func for a running container with runOptions.Name.
// The container is only started by the first call, all others share it.
// It is removed, after every caller called its cleanup.
func GetDockerContainerInstance(runOptions *dockertest.RunOptions, retryFunc RetryFunc) (func() error, error) {
	if runOptions == nil || runOptions.Name == "" {
		return nil, ErrMissingInstanceName
	}

	muContainers.Lock()
	c, running := containers["/"+runOptions.Name]
	if running {
		c.users++
	}
	muContainers.Unlock()

	if running {
		return release("/" + runOptions.Name), nil
	}

	return StartDockerContainer(runOptions, retryFunc)
}

// StartDockerContainer starts a container with runOptions, e.g. Repository, Tag, and Env,
// and waits until retryFunc can connect to it.
// The returned func stops and removes the container.
func StartDockerContainer(runOptions *dockertest.RunOptions, retryFunc RetryFunc) (func() error, error) {
	if runOptions == nil {
		return nil, fmt.Errorf("%w: invalid run options", ErrDockerFailure)
	}

	if retryFunc == nil {
		return nil, fmt.Errorf("%w: invalid retry func", ErrDockerFailure)
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("%w: could not create pool: %v", ErrDockerFailure, err)
	}

	if err := pool.Client.Ping(); err != nil {
		return nil, fmt.Errorf("%w: could not connect to docker: %v", ErrDockerFailure, err)
	}

	resource, err := pool.RunWithOptions(runOptions, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no", MaximumRetryCount: 0}
	})
	if err != nil {
		return nil, fmt.Errorf("%w: could not start container: %v", ErrDockerFailure, err)
	}

	const timeout = 120
	_ = resource.Expire(timeout) // hard kill, in case cleanup is never called

	pool.MaxWait = timeout * time.Second
	if err := pool.Retry(retryFunc(resource)); err != nil {
		_ = pool.Purge(resource)
		return nil, fmt.Errorf("%w: could not connect to container: %v", ErrDockerFailure, err)
	}

	name := resource.Container.Name

	muContainers.Lock()
	containers[name] = &container{
		purge: func() error { return pool.Purge(resource) },
		users: 1,
	}
	muContainers.Unlock()

	return release(name), nil
}

func release(name string) func() error {
	return func() error {
		muContainers.Lock()
		defer muContainers.Unlock()

		c, ok := containers[name]
		if !ok {
			return nil
		}

		c.users--
		if c.users > 0 {
			return nil
		}

		delete(containers, name)

		if err := c.purge(); err != nil {
			return fmt.Errorf("%w: could not purge container: %v", ErrDockerFailure, err)
		}

		return nil
	}
}
