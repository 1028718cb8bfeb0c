package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/go-arrower/fixturedb/factory"
)

func newSeedCmd(a *app) *cobra.Command {
	var (
		count int
		seed  int64
		attrs []string
	)

	seedCmd := &cobra.Command{
		Use:   "seed <table>",
		Short: "Add fake records to a table and mirror them",
		Example: `  fixturedb seed users --count 20 --attr name --attr mail=email
  fixturedb seed posts --attr title --attr body=paragraph --seed 42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			generators, err := factory.ParseAttrs(attrs)
			if err != nil {
				return err //nolint:wrapcheck
			}

			inst, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer inst.Close()

			if err := inst.load(cmd.Context()); err != nil {
				return err
			}

			table := inst.db.Collection(args[0])

			created, err := factory.New(seed, generators).Create(table, count)
			if err != nil {
				return err //nolint:wrapcheck
			}

			if err := inst.store.Save(cmd.Context()); err != nil {
				return fmt.Errorf("could not mirror fixtures: %w", err)
			}

			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "created %d records in %s, now %d\n",
				len(created), table.Name(), table.Len())

			return nil
		},
	}

	seedCmd.Flags().IntVarP(&count, "count", "n", 10, "number of records to create") //nolint:mnd
	seedCmd.Flags().Int64Var(&seed, "seed", 0, "seed of the fake data, 0 is random")
	seedCmd.Flags().StringArrayVar(&attrs, "attr", []string{"name"}, "attribute as attr=generator, can be repeated")

	return seedCmd
}
