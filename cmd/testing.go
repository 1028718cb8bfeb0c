package cmd

import (
	"bytes"
	"sync"
	"testing"

	"github.com/spf13/cobra"
)

// mu serialises TestExecute, as commands are passed as pointers and
// the same command can be executed by parallel tests.
var mu sync.Mutex

// TestExecute executes command with args and returns everything it wrote to
// its out and err writers, together with the error of the command.
func TestExecute(t *testing.T, command *cobra.Command, args ...string) (string, error) {
	t.Helper()

	mu.Lock()
	defer mu.Unlock()

	buf := &syncBuffer{}
	command.SetOut(buf)
	command.SetErr(buf)
	command.SetArgs(args)

	_, err := command.ExecuteC()

	return buf.String(), err //nolint:wrapcheck
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p) //nolint:wrapcheck
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}
