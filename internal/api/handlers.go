package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/extract"
	"github.com/spherical/table-extractor/internal/observability"
	"github.com/spherical/table-extractor/internal/sink"
	"github.com/spherical/table-extractor/internal/storage"
)

// Extractor runs extractions for HTTP requests.
type Extractor interface {
	ProcessUpload(ctx context.Context, name string, data []byte, selector domain.ColumnSelector, events chan<- domain.StageEvent) (*extract.Result, error)
	Parse(ctx context.Context, raw string, selector domain.ColumnSelector) (domain.Table, error)
}

// History reads past extractions.
type History interface {
	List(ctx context.Context, limit int) ([]domain.ExtractionRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.ExtractionRecord, error)
}

const defaultMaxUpload = 20 << 20

// Handler serves the extraction endpoints.
type Handler struct {
	logger    *observability.Logger
	extractor Extractor
	history   History
	maxUpload int64
}

// NewHandler creates a new handler.
func NewHandler(logger *observability.Logger, extractor Extractor, history History, maxUpload int64) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Handler{
		logger:    logger,
		extractor: extractor,
		history:   history,
		maxUpload: maxUpload,
	}
}

// TableResponseDTO is the JSON form of a projected table.
type TableResponseDTO struct {
	ID         string     `json:"id,omitempty"`
	Image      string     `json:"image,omitempty"`
	Header     []string   `json:"header"`
	Rows       [][]string `json:"rows"`
	CSV        string     `json:"csv"`
	DurationMs int64      `json:"durationMs,omitempty"`
}

// ExtractionDTO is one history entry.
type ExtractionDTO struct {
	ID          string   `json:"id"`
	Image       string   `json:"image"`
	Model       string   `json:"model"`
	Location    string   `json:"location,omitempty"`
	Columns     []string `json:"columns"`
	RowCount    int      `json:"rowCount"`
	ColumnCount int      `json:"columnCount"`
	Status      string   `json:"status"`
	Stage       string   `json:"stage"`
	Reason      string   `json:"reason,omitempty"`
	StartedAt   string   `json:"startedAt"`
	FinishedAt  string   `json:"finishedAt"`
}

// CreateExtraction handles POST /extractions with a multipart image.
func (h *Handler) CreateExtraction(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid multipart form", err.Error())
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "image file is required", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read image", err.Error())
		return
	}

	selector := extract.ColumnsSelector(extract.ParseColumns(r.FormValue("columns")))
	res, err := h.extractor.ProcessUpload(r.Context(), header.Filename, data, selector, nil)
	if err != nil {
		h.writeFailure(r.Context(), w, err)
		return
	}

	h.writeTable(w, r, TableResponseDTO{
		ID:         res.ID.String(),
		Image:      res.ImageName,
		DurationMs: res.Duration.Milliseconds(),
	}, res.Table)
}

// Parse handles POST /parse with a raw model response as the body.
func (h *Handler) Parse(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}

	selector := extract.ColumnsSelector(extract.ParseColumns(r.URL.Query().Get("columns")))
	t, err := h.extractor.Parse(r.Context(), string(body), selector)
	if err != nil {
		h.writeFailure(r.Context(), w, err)
		return
	}

	h.writeTable(w, r, TableResponseDTO{}, t)
}

// ListExtractions handles GET /extractions.
func (h *Handler) ListExtractions(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusServiceUnavailable, "history is disabled", "")
		return
	}

	limit := storage.DefaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = n
	}

	records, err := h.history.List(r.Context(), limit)
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("List extractions failed")
		h.writeError(w, http.StatusInternalServerError, "failed to list extractions", err.Error())
		return
	}

	out := make([]ExtractionDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, toExtractionDTO(rec))
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"extractions": out})
}

// GetExtraction handles GET /extractions/{id}.
func (h *Handler) GetExtraction(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.writeError(w, http.StatusServiceUnavailable, "history is disabled", "")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid extraction id", err.Error())
		return
	}

	rec, err := h.history.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, "extraction not found", "")
		return
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load extraction", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, toExtractionDTO(*rec))
}

func (h *Handler) writeTable(w http.ResponseWriter, r *http.Request, dto TableResponseDTO, t domain.Table) {
	text, err := sink.EncodeString(t)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to encode table", err.Error())
		return
	}

	if wantsCSV(r) {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="`+domain.ResultsFileName+`"`)
		io.WriteString(w, text)
		return
	}

	dto.Header = t.Header()
	dto.Rows = make([][]string, 0, len(t.Data()))
	for _, row := range t.Data() {
		dto.Rows = append(dto.Rows, row)
	}
	dto.CSV = text
	h.writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) writeFailure(ctx context.Context, w http.ResponseWriter, err error) {
	status := StatusFor(err)
	message := err.Error()
	var se *domain.StageError
	if errors.As(err, &se) {
		message = se.Reason
	}

	event := h.logger.WithContext(ctx).Warn()
	if status >= http.StatusInternalServerError {
		event = h.logger.WithContext(ctx).Error()
	}
	event.Err(err).Int("status", status).Msg("Extraction failed")

	detail := ""
	if se != nil {
		detail = string(se.Stage)
	}
	h.writeError(w, status, message, detail)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	h.writeJSON(w, status, resp)
}

// StatusFor maps an extraction error to an HTTP status.
func StatusFor(err error) int {
	var malformed *domain.MalformedCSVError
	switch {
	case errors.Is(err, domain.ErrNoColumnsSelected):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEmptyTable), errors.As(err, &malformed):
		return http.StatusUnprocessableEntity
	case domain.IsType(err, domain.ErrorTypeValidation):
		return http.StatusBadRequest
	case domain.IsType(err, domain.ErrorTypeAPI):
		return http.StatusBadGateway
	case domain.IsType(err, domain.ErrorTypeConfig):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func wantsCSV(r *http.Request) bool {
	if f := r.URL.Query().Get("format"); f != "" {
		return f == "csv"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/csv")
}

func toExtractionDTO(rec domain.ExtractionRecord) ExtractionDTO {
	columns := rec.Columns
	if columns == nil {
		columns = []string{}
	}
	return ExtractionDTO{
		ID:          rec.ID.String(),
		Image:       rec.ImageName,
		Model:       rec.Model,
		Location:    rec.Location,
		Columns:     columns,
		RowCount:    rec.RowCount,
		ColumnCount: rec.ColumnCount,
		Status:      string(rec.Status),
		Stage:       string(rec.Stage),
		Reason:      rec.Reason,
		StartedAt:   rec.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		FinishedAt:  rec.FinishedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
