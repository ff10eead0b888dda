package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/observability"
	"github.com/spherical/table-extractor/internal/table"
)

const reasonCancelled = "cancelled"

// Service orchestrates the image to table extraction process
type Service struct {
	model     domain.VisionModel
	modelName string
	recorder  domain.Recorder
	logger    *observability.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRecorder stores a history record after every Process call.
func WithRecorder(r domain.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithModelName sets the model name written to history records.
func WithModelName(name string) Option {
	return func(s *Service) { s.modelName = name }
}

// NewService creates a new extraction service. model may be nil when only
// Extract is used.
func NewService(model domain.VisionModel, logger *observability.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Service{
		model:  model,
		logger: logger.WithOperation("extract"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Request is one image extraction.
type Request struct {
	Source   domain.ImageSource
	Selector domain.ColumnSelector
	Sink     domain.Sink
}

// Result describes a finished extraction.
type Result struct {
	ID        uuid.UUID
	Table     domain.Table
	Location  string
	ImageName string
	Width     int
	Height    int
	Duration  time.Duration
}

// Process loads the image, asks the model for CSV, runs Extract on the
// answer and saves the projected table. Every run is recorded when a
// recorder is configured.
func (s *Service) Process(ctx context.Context, req Request, events chan<- domain.StageEvent) (*Result, error) {
	start := time.Now()
	res := &Result{ID: uuid.New()}
	logger := s.logger.WithExtraction(res.ID.String())

	projected, err := s.process(ctx, req, res, logger, events)
	res.Duration = time.Since(start)
	s.record(ctx, res, projected, err, start, logger)

	if err != nil {
		logger.Warn().Err(err).Dur("duration", res.Duration).Msg("Extraction failed")
		return nil, err
	}

	res.Table = projected
	logger.Info().
		Str("location", res.Location).
		Table(projected).
		Dur("duration", res.Duration).
		Msg("Extraction complete")
	return res, nil
}

func (s *Service) process(ctx context.Context, req Request, res *Result, logger *observability.Logger, events chan<- domain.StageEvent) (domain.Table, error) {
	if req.Source == nil {
		return nil, s.fail(events, domain.StageLoadImage, "no image source", domain.ValidationError("image source is required", nil))
	}
	if s.model == nil {
		return nil, s.fail(events, domain.StageQueryModel, "no vision model configured", domain.ConfigError("vision model is required", nil))
	}

	if err := ctx.Err(); err != nil {
		return nil, s.fail(events, domain.StageLoadImage, reasonCancelled, err)
	}
	img, err := req.Source.Load(ctx)
	if err != nil {
		return nil, s.fail(events, domain.StageLoadImage, "could not load image: "+reasonFor(err), err)
	}
	res.ImageName, res.Width, res.Height = img.Name, img.Width, img.Height
	logger.Debug().Str("image", img.Name).Int("bytes", len(img.Data)).Msg("Image loaded")
	s.emit(events, domain.StageEvent{
		Stage:   domain.StageLoadImage,
		Message: fmt.Sprintf("Loaded %s (%dx%d)", img.Name, img.Width, img.Height),
	})

	if err := ctx.Err(); err != nil {
		return nil, s.fail(events, domain.StageQueryModel, reasonCancelled, err)
	}
	s.emit(events, domain.StageEvent{Stage: domain.StageQueryModel, Message: "Querying vision model"})
	raw, err := s.model.Extract(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.fail(events, domain.StageQueryModel, reasonCancelled, ctx.Err())
		}
		return nil, s.fail(events, domain.StageQueryModel, "model request failed: "+reasonFor(err), err)
	}

	projected, err := s.Extract(ctx, raw, req.Selector, events)
	if err != nil {
		return nil, err
	}

	if req.Sink == nil {
		return projected, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, s.fail(events, domain.StageSave, reasonCancelled, err)
	}
	location, err := req.Sink.Save(ctx, projected)
	if err != nil {
		return nil, s.fail(events, domain.StageSave, "could not save results: "+reasonFor(err), err)
	}
	res.Location = location
	s.emit(events, domain.StageEvent{
		Stage:   domain.StageSave,
		Message: "Saved to " + location,
		Rows:    len(projected),
		Columns: len(projected.Header()),
	})
	return projected, nil
}

// Extract runs the parsing pipeline on a raw model response:
// received, normalized, decoded, headers_selected, projected, done.
// Any failure is returned as a *domain.StageError and no table.
func (s *Service) Extract(ctx context.Context, raw string, selector domain.ColumnSelector, events chan<- domain.StageEvent) (domain.Table, error) {
	if selector == nil {
		selector = AllColumns
	}

	s.emit(events, domain.StageEvent{
		Stage:   domain.StageReceived,
		Message: fmt.Sprintf("Received %d bytes from model", len(raw)),
	})

	if err := ctx.Err(); err != nil {
		return nil, s.fail(events, domain.StageNormalized, reasonCancelled, err)
	}
	lines := table.Normalize(raw)
	s.emit(events, domain.StageEvent{
		Stage:   domain.StageNormalized,
		Message: fmt.Sprintf("%d candidate lines", len(lines)),
		Rows:    len(lines),
	})

	if err := ctx.Err(); err != nil {
		return nil, s.fail(events, domain.StageDecoded, reasonCancelled, err)
	}
	decoded, err := table.Decode(lines)
	if err != nil {
		return nil, s.fail(events, domain.StageDecoded, reasonFor(err), err)
	}
	header, preview := table.Preview(decoded)
	s.emit(events, domain.StageEvent{
		Stage:   domain.StageDecoded,
		Message: fmt.Sprintf("Parsed %d rows", len(decoded)),
		Rows:    len(decoded),
		Columns: len(header),
	})

	if err := ctx.Err(); err != nil {
		return nil, s.fail(events, domain.StageHeadersSelected, reasonCancelled, err)
	}
	selected, err := selector.SelectColumns(ctx, header, preview)
	switch {
	case errors.Is(err, domain.ErrNoColumnsSelected):
		return nil, s.fail(events, domain.StageHeadersSelected, reasonFor(domain.ErrNoColumnsSelected), err)
	case err != nil && ctx.Err() != nil:
		return nil, s.fail(events, domain.StageHeadersSelected, reasonCancelled, ctx.Err())
	case err != nil:
		return nil, s.fail(events, domain.StageHeadersSelected, "column selection failed: "+reasonFor(err), err)
	case len(table.ColumnIndices(header, selected)) == 0:
		return nil, s.fail(events, domain.StageHeadersSelected, reasonFor(domain.ErrNoColumnsSelected), domain.ErrNoColumnsSelected)
	}
	s.emit(events, domain.StageEvent{
		Stage:   domain.StageHeadersSelected,
		Message: fmt.Sprintf("%d of %d columns selected", len(table.ColumnIndices(header, selected)), len(header)),
	})

	if err := ctx.Err(); err != nil {
		return nil, s.fail(events, domain.StageProjected, reasonCancelled, err)
	}
	projected, err := table.Project(decoded, selected)
	if err != nil {
		return nil, s.fail(events, domain.StageProjected, reasonFor(err), err)
	}
	s.emit(events, domain.StageEvent{
		Stage:   domain.StageProjected,
		Message: fmt.Sprintf("Projected %d columns", len(projected.Header())),
		Rows:    len(projected),
		Columns: len(projected.Header()),
	})

	s.emit(events, domain.StageEvent{
		Stage:   domain.StageDone,
		Message: fmt.Sprintf("%d rows x %d columns", len(projected), len(projected.Header())),
		Rows:    len(projected),
		Columns: len(projected.Header()),
	})
	return projected, nil
}

func (s *Service) record(ctx context.Context, res *Result, projected domain.Table, err error, start time.Time, logger *observability.Logger) {
	if s.recorder == nil {
		return
	}

	rec := domain.ExtractionRecord{
		ID:          res.ID,
		ImageName:   res.ImageName,
		Model:       s.modelName,
		Location:    res.Location,
		Columns:     []string(projected.Header()),
		RowCount:    len(projected),
		ColumnCount: len(projected.Header()),
		Status:      domain.StatusDone,
		Stage:       domain.StageDone,
		StartedAt:   start.UTC(),
		FinishedAt:  start.Add(res.Duration).UTC(),
	}
	if err != nil {
		rec.Status = domain.StatusFailed
		rec.Reason = err.Error()
		rec.Columns, rec.RowCount, rec.ColumnCount = nil, 0, 0
		var se *domain.StageError
		if errors.As(err, &se) {
			rec.Stage = se.Stage
		}
	}

	// History must survive a cancelled request.
	if recErr := s.recorder.Record(context.WithoutCancel(ctx), rec); recErr != nil {
		logger.Error().Err(recErr).Msg("Failed to record extraction")
	}
}

func (s *Service) fail(events chan<- domain.StageEvent, stage domain.Stage, reason string, err error) *domain.StageError {
	s.logger.Debug().Stage(stage).Err(err).Msg(reason)
	s.emit(events, domain.StageEvent{Stage: domain.StageFailed, Message: reason})
	return &domain.StageError{Stage: stage, Reason: reason, Err: err}
}

// emit sends without blocking; a full channel drops the event.
func (s *Service) emit(events chan<- domain.StageEvent, event domain.StageEvent) {
	if events == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case events <- event:
	default:
		s.logger.Warn().Stage(event.Stage).Msg("Event channel full, dropping event")
	}
}

// reasonFor turns an error into text fit for end users.
func reasonFor(err error) string {
	var (
		malformed *domain.MalformedCSVError
		de        *domain.DomainError
	)
	switch {
	case errors.As(err, &malformed):
		return fmt.Sprintf("malformed CSV in model response at line %d: %s", malformed.Line, malformed.Text)
	case errors.As(err, &de):
		if de.Err != nil && de.Type != domain.ErrorTypeValidation {
			return fmt.Sprintf("%s: %v", de.Message, de.Err)
		}
		return de.Message
	default:
		return err.Error()
	}
}
