package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/spherical/table-extractor/internal/mcptool"
	"github.com/spherical/table-extractor/pkg/extractor"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as an MCP tool server on stdio",
	Long: `Serve the parse_table_response tool over the Model Context Protocol on
stdin/stdout. extract_table is added when an API key is configured.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg.Output.Clipboard = false
	client, err := extractor.NewClientFromConfig(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize extractor: %w", err)
	}
	defer client.Close()

	withExtract := cfg.RequireAPIKey() == nil
	logger.Info().Bool("extract_table", withExtract).Msg("Starting MCP server on stdio")

	server := mcptool.NewServer(client, appVersion, withExtract)
	if err := mcptool.Run(ctx, server); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
