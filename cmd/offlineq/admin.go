package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/go-offline-queue/queuekit"
)

func newRetryCmd(c *cli) *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Move FAILED items back to PENDING with a fresh retry budget",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := a.manager.Admin().RetryFailed(ctx, queuekit.Filter{Collection: collection})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %d items\n", n)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "", "only items for this collection")
	return cmd
}

func newAdminCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Maintenance operations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "snapshot",
			Short: "Dump every item and conflict",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withApp(cmd, func(ctx context.Context, a *app) error {
					snap, err := a.manager.Admin().Snapshot(ctx)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), snap)
				})
			},
		},
		&cobra.Command{
			Use:   "purge",
			Short: "Delete COMPLETED items",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withApp(cmd, func(ctx context.Context, a *app) error {
					n, err := a.manager.Admin().PurgeCompleted(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "purged %d items\n", n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "recover",
			Short: "Reset items left PROCESSING by an interrupted pass",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withApp(cmd, func(ctx context.Context, a *app) error {
					n, err := a.manager.Admin().RecoverInterrupted(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "recovered %d items\n", n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "clear-cache",
			Short: "Empty the response cache",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withApp(cmd, func(ctx context.Context, a *app) error {
					if err := a.manager.Admin().ClearCache(ctx); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
					return nil
				})
			},
		},
	)
	return cmd
}
