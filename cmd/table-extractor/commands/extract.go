package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/spherical/table-extractor/cmd/table-extractor/ui"
	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/pkg/extractor"
)

var (
	extractColumns     []string
	extractOutputDir   string
	extractNoClipboard bool
	extractAll         bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <image>",
	Short: "Extract a table from an image",
	Long: `Send an image to the vision model, choose the columns to keep and save
them to results.csv next to the image (or in --output-dir).`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().StringSliceVar(&extractColumns, "columns", nil, "columns to keep, skipping the prompt")
	extractCmd.Flags().StringVarP(&extractOutputDir, "output-dir", "o", "", "directory for results.csv (default: the image's directory)")
	extractCmd.Flags().BoolVar(&extractNoClipboard, "no-clipboard", false, "do not copy the result to the clipboard")
	extractCmd.Flags().BoolVar(&extractAll, "all", false, "keep every column without asking")
	rootCmd.AddCommand(extractCmd)
}

type extractOutcome struct {
	result *extractor.Result
	err    error
}

func runExtract(cmd *cobra.Command, args []string) error {
	imagePath := args[0]

	ctx, cancel := signalContext()
	defer cancel()

	if err := ensureAPIKey(); err != nil {
		return err
	}
	if extractNoClipboard {
		cfg.Output.Clipboard = false
	}

	client, err := extractor.NewClientFromConfig(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize extractor: %w", err)
	}
	defer client.Close()

	progress := newStageProgress(ui.NewSpinner("Loading image..."))

	var selector domain.ColumnSelector
	switch {
	case len(extractColumns) > 0:
		selector = extractor.Columns(extractColumns...)
	case extractAll || !ui.IsTerminal(os.Stdin):
		selector = extractor.AllColumns
	default:
		selector = &ui.PromptSelector{
			In:           os.Stdin,
			Out:          os.Stdout,
			BeforePrompt: progress.pause,
			AfterPrompt:  progress.resume,
		}
	}

	ui.Section("Table Extraction")
	ui.Info("Image: %s", imagePath)

	events := make(chan domain.StageEvent, 32)
	done := make(chan extractOutcome, 1)
	progress.start()
	go func() {
		res, err := client.Process(ctx, imagePath, selector, extractOutputDir, events)
		close(events)
		done <- extractOutcome{result: res, err: err}
	}()

	for event := range events {
		progress.show(event)
	}
	progress.stop()

	outcome := <-done
	if outcome.err != nil {
		reportFailure(outcome.err)
		return ErrReported
	}

	res := outcome.result
	ui.Newline()
	ui.Table(os.Stdout, res.Table.Header(), res.Table.Records()[1:])
	ui.Newline()
	ui.Success("Done, saved to %s", res.Location)
	ui.Info("%d rows, %d columns in %s", len(res.Table.Data()), len(res.Table.Header()), ui.FormatDuration(res.Duration))
	if cfg.Output.Clipboard {
		ui.Info("Copied to clipboard")
	}
	return nil
}

// stageProgress renders stage events on the spinner and as verbose steps.
// While a prompt owns the terminal, show blocks until resume.
type stageProgress struct {
	mu   sync.Mutex
	spin *ui.Spinner
	step func(format string, args ...interface{})
}

func newStageProgress(spin *ui.Spinner) *stageProgress {
	return &stageProgress{spin: spin, step: ui.Step}
}

func (p *stageProgress) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spin.Start()
}

func (p *stageProgress) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spin.Stop()
}

func (p *stageProgress) pause() {
	p.mu.Lock()
	p.spin.Stop()
}

func (p *stageProgress) resume() {
	p.spin.Start()
	p.mu.Unlock()
}

func (p *stageProgress) show(event domain.StageEvent) {
	if event.Stage == domain.StageFailed {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.spin.UpdateMessage(event.Message + "...")
	p.step("%s: %s", event.Stage, event.Message)
}

// ensureAPIKey asks for a key on a terminal when none is configured. The
// key lives only for this process.
func ensureAPIKey() error {
	if cfg.RequireAPIKey() == nil {
		return nil
	}
	if !ui.IsTerminal(os.Stdin) {
		return cfg.RequireAPIKey()
	}

	key, err := ui.PromptSecret("Please enter your OpenAI API key")
	if err != nil {
		return fmt.Errorf("read API key: %w", err)
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("the application cannot run without an API key")
	}
	cfg.LLM.APIKey = key
	return nil
}

func reportFailure(err error) {
	reason := err.Error()
	stage := ""
	var se *domain.StageError
	if errors.As(err, &se) {
		reason = se.Reason
		stage = string(se.Stage)
	}

	ui.Newline()
	ui.Error("Extraction failed: %s", reason)
	if stage != "" {
		ui.Step("failed during %s", stage)
	}
	logger.Debug().Err(err).Msg("Extraction failed")
	ui.Info("Fix the problem and run the command again to retry.")
}
