package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/go-offline-queue/queuekit"
)

func newConflictsCmd(c *cli) *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List conflicts waiting for a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				records, err := a.manager.GetConflicts(ctx, queuekit.Filter{Collection: collection})
				if err != nil {
					return err
				}
				if records == nil {
					records = []*queuekit.ConflictResolution{}
				}
				return printJSON(cmd.OutOrStdout(), records)
			})
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "", "only conflicts for this collection")
	return cmd
}

func newResolveCmd(c *cli) *cobra.Command {
	var (
		strategy string
		data     string
		userID   string
		all      bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [item-id]",
		Short: "Settle a conflict with SERVER_WINS, CLIENT_WINS or MERGE",
		Long: `Settle the conflict on one item, or every open conflict with --all.
MERGE takes the merged document from --data; without it the two sides are
unioned with the local value winning on overlapping fields.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseStrategy(strategy)
			if err != nil {
				return err
			}
			if all == (len(args) == 1) {
				return fmt.Errorf("give either an item id or --all")
			}
			final, err := parseData(data)
			if err != nil {
				return err
			}

			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				a.probeOnce(ctx)
				if all {
					n, err := a.manager.ResolveAll(ctx, s, userID)
					fmt.Fprintf(cmd.OutOrStdout(), "resolved %d conflicts\n", n)
					return err
				}
				item, err := a.manager.ResolveConflict(ctx, args[0], s, final, userID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), item)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&strategy, "strategy", "", "SERVER_WINS, CLIENT_WINS or MERGE")
	f.StringVarP(&data, "data", "d", "", "merged document for MERGE, as a JSON object")
	f.StringVar(&userID, "user", "", "who made the decision")
	f.BoolVar(&all, "all", false, "resolve every open conflict")
	_ = cmd.MarkFlagRequired("strategy")

	return cmd
}
