package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mosaicdb/mosaicdb/internal/config"
	"github.com/mosaicdb/mosaicdb/internal/engine"
	"github.com/mosaicdb/mosaicdb/internal/output"
)

func newShardsCmd() *cobra.Command {
	var configPath string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "shards",
		Short: "List the shards registered in the routing index",
		Long: `List every shard the routing index currently tracks at the default
routing level: its ID, storage path, document count, and query count.

Opens the routing index read-write (it is the same index the coordinator
uses) without starting an HTTP server, so do not run this against a
routing index a running 'mosaicdb serve' also has open.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShards(cmd.Context(), cmd, configPath, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a YAML config file (defaults are used if omitted)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runShards(ctx context.Context, cmd *cobra.Command, configPath string, jsonOutput bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer func() { _ = eng.Close() }()

	resp, err := eng.ListShards(ctx)
	if err != nil {
		return fmt.Errorf("list shards: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	out := output.New(cmd.OutOrStdout())
	if resp.Count == 0 {
		out.Status("", "No shards registered")
		return nil
	}
	for _, shard := range resp.Shards {
		out.Statusf("", "%s  docs=%d  queries=%d  %s", shard.ID, shard.DocCount, shard.QueryCount, shard.Path)
	}
	return nil
}
