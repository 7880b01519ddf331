package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zereker/brevent"
)

func probeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check whether the service is listening",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve()
			if err != nil {
				return err
			}
			logger := flags.logger(cfg)

			executor := brevent.NewExecutor(1)
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = executor.Shutdown(ctx)
			}()

			prober := brevent.NewProber(executor, clientOptions(cfg, logger)...)
			ok, err := prober.Check(cmd.Context())
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("service not reachable at %s", cfg.Addr)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "service reachable at %s\n", cfg.Addr)
			return nil
		},
	}
}
