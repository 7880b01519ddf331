package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Zereker/brevent"
)

func statusCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Request the service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve()
			if err != nil {
				return err
			}
			logger := flags.logger(cfg)

			out := cmd.OutOrStdout()
			opts := append(clientOptions(cfg, logger),
				brevent.PublisherOption(brevent.PublisherFunc(func(m brevent.Message) {
					printMessage(out, m)
				})))

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.IdleTimeout)
			defer cancel()

			request := brevent.NewStatusRequest()
			reply, err := brevent.NewClient(opts...).Send(ctx, request)
			if err != nil {
				return err
			}
			if reply == nil {
				fmt.Fprintln(out, "no status returned")
			}
			return nil
		},
	}
}

func updateCmd(flags *globalFlags) *cobra.Command {
	var (
		remove   bool
		priority bool
	)

	cmd := &cobra.Command{
		Use:   "update PACKAGE...",
		Short: "Add packages to or remove them from the brevent or priority list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.resolve()
			if err != nil {
				return err
			}
			logger := flags.logger(cfg)

			var request brevent.Message
			if priority {
				request = brevent.NewUpdatePriority(!remove, args...)
			} else {
				request = brevent.NewUpdateBrevent(!remove, args...)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.IdleTimeout)
			defer cancel()

			if _, err := brevent.NewClient(clientOptions(cfg, logger)...).Send(ctx, request); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s for %s\n", request.Action(), strings.Join(args, ", "))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&remove, "remove", "r", false, "remove the packages instead of adding them")
	cmd.Flags().BoolVarP(&priority, "priority", "p", false, "update the priority list instead of the brevent list")

	return cmd
}

func printMessage(w io.Writer, m brevent.Message) {
	fmt.Fprintln(w, m)
	resp, ok := m.(*brevent.StatusResponse)
	if !ok {
		return
	}
	fmt.Fprintf(w, "  token:    %s\n", resp.Token)
	fmt.Fprintf(w, "  brevent:  %s\n", strings.Join(resp.Brevent, ", "))
	fmt.Fprintf(w, "  priority: %s\n", strings.Join(resp.Priority, ", "))
	fmt.Fprintf(w, "  daemon:   %s\n", time.UnixMilli(resp.DaemonTime).Format(time.RFC3339))
	fmt.Fprintf(w, "  root:     %t\n", resp.Root)
}
