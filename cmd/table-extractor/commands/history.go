package commands

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/spherical/table-extractor/cmd/table-extractor/ui"
	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/storage"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent extractions",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", storage.DefaultListLimit, "number of extractions to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !cfg.History.Enabled {
		ui.Warning("History is disabled in the configuration")
		return nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	history, err := storage.Open(ctx, historyOptions(cfg))
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer history.Close()

	records, err := history.List(ctx, historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		ui.Info("No extractions recorded yet")
		return nil
	}

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, historyRow(rec))
	}

	ui.Section("Recent Extractions")
	ui.Table(os.Stdout, []string{"ID", "Started", "Image", "Status", "Rows", "Cols", "Result"}, rows)
	return nil
}

func historyRow(rec domain.ExtractionRecord) []string {
	result := rec.Location
	if rec.Status == domain.StatusFailed {
		result = fmt.Sprintf("%s: %s", rec.Stage, rec.Reason)
	}
	return []string{
		rec.ID.String()[:8],
		rec.StartedAt.Local().Format("2006-01-02 15:04"),
		ui.Truncate(rec.ImageName, 32),
		string(rec.Status),
		strconv.Itoa(rec.RowCount),
		strconv.Itoa(rec.ColumnCount),
		ui.Truncate(result, 60),
	}
}
