package domain

import "context"

// ImageSource supplies the raw bytes of one image.
type ImageSource interface {
	Load(ctx context.Context) (Image, error)
}

// VisionModel turns an image into free-form text.
type VisionModel interface {
	// Extract blocks until the model has answered or ctx is done.
	Extract(ctx context.Context, image Image) (string, error)
}

// ColumnSelector chooses which headers to keep. An empty set, or
// ErrNoColumnsSelected, means nothing was selected.
type ColumnSelector interface {
	SelectColumns(ctx context.Context, headers Row, preview []Row) (HeaderSet, error)
}

// SelectorFunc adapts a function to ColumnSelector.
type SelectorFunc func(ctx context.Context, headers Row, preview []Row) (HeaderSet, error)

func (f SelectorFunc) SelectColumns(ctx context.Context, headers Row, preview []Row) (HeaderSet, error) {
	return f(ctx, headers, preview)
}

// Sink persists a projected table and returns where it went.
type Sink interface {
	Save(ctx context.Context, table Table) (string, error)
}

// Recorder stores extraction history.
type Recorder interface {
	Record(ctx context.Context, record ExtractionRecord) error
}
