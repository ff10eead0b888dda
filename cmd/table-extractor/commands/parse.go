package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical/table-extractor/internal/extract"
	"github.com/spherical/table-extractor/internal/sink"
)

var (
	parseColumns []string
	parseOutput  string
)

var parseCmd = &cobra.Command{
	Use:   "parse [response-file]",
	Short: "Parse a saved model response into CSV",
	Long: `Run the parsing pipeline on a model response saved to a file, or read from
stdin when no file is given. The vision model is not called.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringSliceVar(&parseColumns, "columns", nil, "columns to keep (default: all)")
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", "", "write CSV to this file instead of stdout")
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	var in io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open response: %w", err)
		}
		defer f.Close()
		in = f
	}

	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	svc := extract.NewService(nil, logger)
	table, err := svc.Extract(ctx, string(raw), extract.ColumnsSelector(parseColumns), nil)
	if err != nil {
		return err
	}

	if parseOutput == "" {
		return sink.Encode(cmd.OutOrStdout(), table)
	}

	f, err := os.Create(parseOutput)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := sink.Encode(f, table); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
