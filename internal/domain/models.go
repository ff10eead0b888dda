package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	// FenceMarker starts a markdown code fence line.
	FenceMarker = "```"

	// PreviewRows is the number of data rows shown to a column selector.
	PreviewRows = 5

	// ResultsFileName is the name of the persisted CSV file.
	ResultsFileName = "results.csv"
)

// Row is an ordered sequence of cells.
type Row []string

// Clone returns a copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Table is an ordered sequence of rows. The first row is the header.
type Table []Row

// Header returns the header row, or nil for an empty table.
func (t Table) Header() Row {
	if len(t) == 0 {
		return nil
	}
	return t[0]
}

// Data returns the rows after the header.
func (t Table) Data() []Row {
	if len(t) < 2 {
		return nil
	}
	return t[1:]
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	if t == nil {
		return nil
	}
	out := make(Table, len(t))
	for i, row := range t {
		out[i] = row.Clone()
	}
	return out
}

// Records converts the table to the [][]string shape used by encoders.
func (t Table) Records() [][]string {
	out := make([][]string, len(t))
	for i, row := range t {
		out[i] = []string(row)
	}
	return out
}

// HeaderSet is an unordered set of selected header names.
type HeaderSet map[string]struct{}

// NewHeaderSet builds a set from header names.
func NewHeaderSet(headers ...string) HeaderSet {
	s := make(HeaderSet, len(headers))
	for _, h := range headers {
		s[h] = struct{}{}
	}
	return s
}

// Contains reports whether h is selected.
func (s HeaderSet) Contains(h string) bool {
	_, ok := s[h]
	return ok
}

// Sorted returns the selected names in lexical order.
func (s HeaderSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Image is one raster image handed to the vision model.
type Image struct {
	Name     string
	Data     []byte
	MIMEType string
	Width    int
	Height   int
}

// Stage is a state of the extraction pipeline.
type Stage string

const (
	StageLoadImage       Stage = "load_image"
	StageQueryModel      Stage = "query_model"
	StageReceived        Stage = "received"
	StageNormalized      Stage = "normalized"
	StageDecoded         Stage = "decoded"
	StageHeadersSelected Stage = "headers_selected"
	StageProjected       Stage = "projected"
	StageDone            Stage = "done"
	StageSave            Stage = "save"
	StageFailed          Stage = "failed"
)

// StageEvent represents an event emitted during processing
type StageEvent struct {
	Stage     Stage     `json:"stage"`
	Message   string    `json:"message"`
	Rows      int       `json:"rows,omitempty"`
	Columns   int       `json:"columns,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ExtractionStatus is the terminal outcome of one extraction run.
type ExtractionStatus string

const (
	StatusDone   ExtractionStatus = "done"
	StatusFailed ExtractionStatus = "failed"
)

// ExtractionRecord is the history entry written after every run.
type ExtractionRecord struct {
	ID          uuid.UUID        `json:"id"`
	ImageName   string           `json:"image_name"`
	Model       string           `json:"model"`
	Location    string           `json:"location"`
	Columns     []string         `json:"columns"`
	RowCount    int              `json:"row_count"`
	ColumnCount int              `json:"column_count"`
	Status      ExtractionStatus `json:"status"`
	Stage       Stage            `json:"stage"`
	Reason      string           `json:"reason,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}
