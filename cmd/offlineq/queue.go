package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/go-offline-queue/conflict"
	"github.com/c0deZ3R0/go-offline-queue/queuekit"
)

func newEnqueueCmd(c *cli) *cobra.Command {
	var (
		opType     string
		collection string
		docID      string
		data       string
		operations string
		priority   string
		version    string
		strategy   string
		maxRetries int
		userID     string
		teamID     string
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a document mutation",
		Long: `Queue a CREATE, UPDATE, DELETE or BATCH mutation. Nothing is sent to the
remote until the next processing pass.`,
		Example: `  offlineq enqueue --type UPDATE --collection notes --id n1 --version 3 --data '{"title":"draft"}'
  offlineq enqueue --type BATCH --collection notes --operations '[{"type":"DELETE","collection":"notes","documentId":"n2"}]'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parseData(data)
			if err != nil {
				return err
			}

			req := queuekit.EnqueueRequest{
				Type:            queuekit.OperationType(strings.ToUpper(opType)),
				Collection:      collection,
				DocumentID:      docID,
				Data:            payload,
				Priority:        queuekit.Priority(strings.ToUpper(priority)),
				OriginalVersion: version,
				UserID:          userID,
				TeamID:          teamID,
			}
			if operations != "" {
				if err := json.Unmarshal([]byte(operations), &req.Operations); err != nil {
					return fmt.Errorf("--operations must be a JSON array: %w", err)
				}
			}
			if strategy != "" {
				req.ConflictResolution = conflict.Strategy(strings.ToUpper(strategy))
			}
			if cmd.Flags().Changed("max-retries") {
				req.MaxRetries = &maxRetries
			}

			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				item, err := a.manager.AddToQueue(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), item)
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opType, "type", "t", "", "operation type: CREATE, UPDATE, DELETE or BATCH")
	f.StringVar(&collection, "collection", "", "target collection")
	f.StringVar(&docID, "id", "", "target document id")
	f.StringVarP(&data, "data", "d", "", "document payload as a JSON object")
	f.StringVar(&operations, "operations", "", "BATCH sub-operations as a JSON array")
	f.StringVarP(&priority, "priority", "p", "", "LOW, NORMAL, HIGH or CRITICAL")
	f.StringVar(&version, "version", "", "server version the change was made against")
	f.StringVar(&strategy, "strategy", "", "preferred conflict resolution")
	f.IntVar(&maxRetries, "max-retries", 0, "override the retry budget for this item")
	f.StringVar(&userID, "user", "", "owning user")
	f.StringVar(&teamID, "team", "", "owning team")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("collection")

	return cmd
}

func newListCmd(c *cli) *cobra.Command {
	var (
		status     string
		collection string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued items in processing order",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := parseStatus(status)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				items, err := a.manager.GetQueueItems(ctx, queuekit.Filter{Status: st, Collection: collection})
				if err != nil {
					return err
				}
				if items == nil {
					items = []*queuekit.Item{}
				}
				return printJSON(cmd.OutOrStdout(), items)
			})
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "only items with this status")
	cmd.Flags().StringVar(&collection, "collection", "", "only items for this collection")
	return cmd
}

func newGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <collection> <id>",
		Short: "Read a document through the response cache",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				a.probeOnce(ctx)
				doc, err := a.manager.Get(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), doc)
			})
		},
	}
}

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show item counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				stats, err := a.manager.GetQueueStats(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

func newRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <item-id>",
		Short: "Delete one queued item and its conflict record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.manager.RemoveFromQueue(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	}
}

func newClearCmd(c *cli) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove queued items, skipping any in flight",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := parseStatus(status)
			if err != nil {
				return err
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				n, err := a.manager.ClearQueue(ctx, queuekit.Filter{Status: st})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d items\n", n)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&status, "status", "s", "", "only remove items with this status")
	return cmd
}
