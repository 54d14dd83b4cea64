package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c0deZ3R0/go-offline-queue/config"
	"github.com/c0deZ3R0/go-offline-queue/conflict"
	"github.com/c0deZ3R0/go-offline-queue/logging"
	"github.com/c0deZ3R0/go-offline-queue/queuekit"
)

// cli carries the state every subcommand shares
type cli struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	cmd := &cobra.Command{
		Use:          "offlineq",
		Short:        "Durable offline mutation queue",
		Long:         `offlineq records document mutations locally and replays them against a remote store once it is reachable.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			cfg.Logging.Output = cmd.ErrOrStderr()
			logging.Init(cfg.Logging)

			c.cfg = cfg
			c.logger = logging.Default().Logger
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to a YAML, TOML or JSON config file")

	cmd.AddCommand(
		newEnqueueCmd(c),
		newProcessCmd(c),
		newListCmd(c),
		newGetCmd(c),
		newStatsCmd(c),
		newConflictsCmd(c),
		newResolveCmd(c),
		newRemoveCmd(c),
		newRetryCmd(c),
		newClearCmd(c),
		newAdminCmd(c),
		newServeCmd(c),
	)
	return cmd
}

// withApp opens the app for one command and closes it afterwards
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseData decodes a JSON object flag. An empty value yields nil.
func parseData(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("--data must be a JSON object: %w", err)
	}
	return data, nil
}

func parseStatus(raw string) (queuekit.Status, error) {
	if raw == "" {
		return "", nil
	}
	s := queuekit.Status(strings.ToUpper(raw))
	switch s {
	case queuekit.StatusPending, queuekit.StatusProcessing, queuekit.StatusCompleted,
		queuekit.StatusFailed, queuekit.StatusConflict:
		return s, nil
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

func parseStrategy(raw string) (conflict.Strategy, error) {
	s := conflict.Strategy(strings.ToUpper(raw))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", conflict.ErrUnknownStrategy, raw)
	}
	return s, nil
}
