package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:                   "reset",
		Short:                 "Overwrite the mirror with the default fixtures",
		Args:                  cobra.NoArgs,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inst, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer inst.Close()

			if err := inst.store.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("could not reset: %w", err)
			}

			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "reset %v to version %d\n",
				inst.db.Names(), inst.store.Version())

			return nil
		},
	}
}
