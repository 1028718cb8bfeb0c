// Package cli contains the commands of the fixturedb binary.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/go-arrower/fixturedb"
	"github.com/go-arrower/fixturedb/alog"
	"github.com/go-arrower/fixturedb/cmd"
)

const envPrefix = "FIXTUREDB"

// NewInterruptSignalChannel returns a channel receiving the signals serve shuts down on.
func NewInterruptSignalChannel() chan os.Signal {
	osSignal := make(chan os.Signal, 1)
	signal.Notify(osSignal, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)

	return osSignal
}

// New returns the root command with all sub commands.
// serve stops, when osSignal receives.
func New(osSignal <-chan os.Signal) *cobra.Command {
	a := &app{
		vip:     fixturedb.DefaultViper(),
		conf:    fixturedb.Config{},
		logger:  alog.NewNoop(),
		signals: osSignal,
	}

	rootCmd := &cobra.Command{
		Use:   "fixturedb",
		Short: "fixturedb serves fixtures and keeps your changes across restarts",
		Long: `fixturedb loads fixture files into an in-memory database and serves them as REST API.
Every change made through the API is mirrored into a durable storage
and restored on the next start.`,
		Args:                  cobra.NoArgs,
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file, e.g. fixturedb.yaml")
	flags.String("env", "", "environment: local, test, dev, prod")
	flags.String("fixtures-dir", "", "directory of the default fixtures")
	flags.Int("fixtures-version", 0, "version of the fixtures, mirrors of other versions are ignored")
	flags.String("storage-driver", "", "storage of the mirror: memory, file, sqlite, redis, postgres")
	flags.String("storage-path", "", "file used by the file and sqlite storage")
	flags.CountP("verbose", "v", "log what fixturedb is doing internally, repeat for storage operations")

	rootCmd.AddCommand(cmd.Version("fixturedb"))
	rootCmd.AddCommand(newServeCmd(a))
	rootCmd.AddCommand(newDumpCmd(a))
	rootCmd.AddCommand(newResetCmd(a))
	rootCmd.AddCommand(newSeedCmd(a))

	return rootCmd
}

// Execute runs the fixturedb cli.
func Execute() {
	if err := New(NewInterruptSignalChannel()).Execute(); err != nil {
		os.Exit(1)
	}
}

// flagKeys maps flags to the configuration keys they overwrite.
//
//nolint:gochecknoglobals
var flagKeys = map[string]string{
	"env":              "environment",
	"fixtures-dir":     "fixtures.dir",
	"fixtures-version": "fixtures.version",
	"storage-driver":   "storage.driver",
	"storage-path":     "storage.path",
	"port":             "http.port",
	"prefix":           "http.prefix",
}

// init loads the configuration in the order: defaults, config file, environment, flags.
func (a *app) init(cmd *cobra.Command) error {
	a.vip.SetEnvPrefix(envPrefix)
	a.vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.vip.AutomaticEnv()

	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}

		if err := a.vip.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("%w: %v", fixturedb.ErrConfigLoadFailed, err)
		}
	}

	if file, _ := cmd.Flags().GetString("config"); file != "" {
		a.vip.SetConfigFile(file)

		if err := a.vip.ReadInConfig(); err != nil {
			return fmt.Errorf("%w: %v", fixturedb.ErrConfigLoadFailed, err)
		}
	}

	if err := a.vip.Unmarshal(&a.conf); err != nil {
		return err //nolint:wrapcheck
	}

	verbose, _ := cmd.Flags().GetCount("verbose")
	a.logger = newLogger(cmd, a.conf.Environment, verbose)

	return nil
}

func newLogger(cmd *cobra.Command, env fixturedb.Environment, verbose int) *slog.Logger {
	level := slog.LevelInfo

	switch {
	case verbose == 1:
		level = alog.LevelInfo
	case verbose > 1:
		level = alog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:       alog.LevelDebug,
		ReplaceAttr: alog.MapLogLevelsToName,
	}

	var h slog.Handler = slog.NewJSONHandler(cmd.ErrOrStderr(), opts)
	if env == fixturedb.LocalEnv || env == fixturedb.DevelopmentEnv {
		h = slog.NewTextHandler(cmd.ErrOrStderr(), opts)
	}

	return alog.New(alog.WithLevel(level), alog.WithHandler(h))
}
