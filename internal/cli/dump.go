package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/go-arrower/fixturedb/fixture"
	"github.com/go-arrower/fixturedb/fixturestore"
	"github.com/go-arrower/fixturedb/kv"
)

func newDumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:                   "dump",
		Short:                 "Print the mirrored fixtures",
		Args:                  cobra.NoArgs,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inst, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer inst.Close()

			version, err := inst.storage.Get(cmd.Context(), fixturestore.DefaultVersionKey)
			if errors.Is(err, kv.ErrNotFound) {
				color.New(color.FgYellow).Fprintln(cmd.ErrOrStderr(), "no mirror persisted")
				return nil
			}

			if err != nil {
				return fmt.Errorf("could not read version: %w", err)
			}

			data, err := inst.storage.Get(cmd.Context(), fixturestore.DefaultDataKey)
			if err != nil {
				return fmt.Errorf("could not read data: %w", err)
			}

			snapshot, err := fixture.Parse(data)
			if err != nil {
				return err //nolint:wrapcheck
			}

			out, err := json.MarshalIndent(snapshot, "", "\t")
			if err != nil {
				return fmt.Errorf("could not format data: %w", err)
			}

			color.New(color.FgBlue, color.Bold).Fprintf(cmd.ErrOrStderr(), "version %s\n", version)
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			return nil
		},
	}
}
