// Package sink writes projected tables as CSV.
package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/atotto/clipboard"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/observability"
)

// writeClipboard is swapped out in tests.
var writeClipboard = clipboard.WriteAll

// Encode writes t as comma separated values. Cells containing commas,
// quotes or line breaks are quoted.
func Encode(w io.Writer, t domain.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return domain.IOError("failed to write CSV", err)
	}
	return nil
}

// EncodeString returns t as CSV text.
func EncodeString(t domain.Table) (string, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, t); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// FileSink writes results.csv into Dir and optionally copies the CSV to
// the system clipboard.
type FileSink struct {
	Dir       string
	Clipboard bool
	logger    *observability.Logger
}

// NewFileSink creates a sink writing into dir.
func NewFileSink(dir string, copyToClipboard bool, logger *observability.Logger) *FileSink {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &FileSink{Dir: dir, Clipboard: copyToClipboard, logger: logger}
}

// Path returns the file Save writes to.
func (s *FileSink) Path() string {
	return filepath.Join(s.Dir, domain.ResultsFileName)
}

// Save implements domain.Sink. An existing results.csv is replaced.
func (s *FileSink) Save(ctx context.Context, t domain.Table) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	text, err := EncodeString(t)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", domain.IOError("failed to create output directory", err)
	}

	path := s.Path()
	tmp, err := os.CreateTemp(s.Dir, ".results-*.csv")
	if err != nil {
		return "", domain.IOError("failed to create output file", err)
	}
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", domain.IOError("failed to write output file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", domain.IOError("failed to write output file", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", domain.IOError("failed to move output file into place", err)
	}

	s.logger.Info().Str("path", path).Int("rows", len(t)).Msg("Results written")

	if s.Clipboard {
		if err := writeClipboard(text); err != nil {
			s.logger.Warn().Err(err).Msg("Could not copy results to clipboard")
		} else {
			s.logger.Debug().Msg("Results copied to clipboard")
		}
	}
	return path, nil
}

// MemorySink keeps the last saved table in memory.
type MemorySink struct {
	mu    sync.Mutex
	table domain.Table
	csv   string
}

// MemoryLocation is what MemorySink.Save reports.
const MemoryLocation = "memory"

// Save implements domain.Sink.
func (s *MemorySink) Save(_ context.Context, t domain.Table) (string, error) {
	text, err := EncodeString(t)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t.Clone()
	s.csv = text
	return MemoryLocation, nil
}

// Table returns a copy of the last saved table.
func (s *MemorySink) Table() domain.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Clone()
}

// CSV returns the last saved table as CSV text.
func (s *MemorySink) CSV() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.csv
}
