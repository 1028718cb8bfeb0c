// Package cmd contains helpers shared by cobra commands.
package cmd

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// Version returns a `version` command to be added to a cobra root command.
func Version(name string) *cobra.Command {
	name = strings.TrimSpace(name)

	short := "Print version"
	if name != "" {
		short = "Print " + name + " version"
	}

	return &cobra.Command{
		Use:                   "version",
		Short:                 short,
		Args:                  cobra.NoArgs,
		DisableFlagsInUseLine: true,
		Run: func(cmd *cobra.Command, _ []string) {
			hash, ts := VersionInfo()

			prefix := "version"
			if name != "" {
				prefix = name + " version"
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s from %s\n", prefix, hash, ts)
		},
	}
}

// VersionInfo returns the commit hash and commit time the binary was built from.
// Builds with uncommitted changes, and `go run` or `go test`, report @latest and the current time.
func VersionInfo() (string, string) {
	var (
		hash     string
		ts       string
		modified bool
	)

	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				hash = setting.Value
			case "vcs.time":
				ts = setting.Value
			case "vcs.modified":
				modified = setting.Value == "true"
			}
		}
	}

	if modified || hash == "" {
		return "@latest", time.Now().UTC().Format(time.RFC3339)
	}

	return hash, ts
}
