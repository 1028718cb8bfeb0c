package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/go-arrower/fixturedb/mockserver"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(a *app) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:                   "serve",
		Short:                 "Serve the fixtures as REST API",
		Args:                  cobra.NoArgs,
		DisableFlagsInUseLine: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			inst, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer inst.Close()

			if err := inst.load(ctx); err != nil {
				return err
			}

			server := mockserver.New(inst.db, inst.dispatcher,
				mockserver.WithLogger(a.logger),
				mockserver.WithPrefix(a.conf.HTTP.Prefix),
				mockserver.WithResetter(inst.store),
				mockserver.WithMetrics(inst.registry),
				mockserver.WithTracerProvider(inst.telemetry.tracerProvider),
			)

			address := fmt.Sprintf(":%d", a.conf.HTTP.Port)

			blue := color.New(color.FgBlue, color.Bold).FprintfFunc()
			blue(cmd.OutOrStdout(), "serving %v on %s%s\n", inst.db.Names(), address, a.conf.HTTP.Prefix)

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return server.Start(address)
			})

			g.Go(func() error {
				select {
				case sig := <-a.signals:
					a.logger.InfoContext(ctx, "shutdown", slog.Any("signal", sig))
				case <-ctx.Done():
				}

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()

				return server.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil {
				return err //nolint:wrapcheck
			}

			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "stopped")

			return nil
		},
	}

	serveCmd.Flags().Int("port", 0, "port of the REST API")
	serveCmd.Flags().String("prefix", "", "path prefix of the REST API")

	return serveCmd
}
