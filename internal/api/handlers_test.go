package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/table-extractor/internal/domain"
	"github.com/spherical/table-extractor/internal/extract"
	"github.com/spherical/table-extractor/internal/storage"
)

type fakeExtractor struct {
	svc      *extract.Service
	text     string
	err      error
	uploaded string
	data     []byte
}

func newFakeExtractor(text string) *fakeExtractor {
	return &fakeExtractor{svc: extract.NewService(nil, nil), text: text}
}

func (f *fakeExtractor) ProcessUpload(ctx context.Context, name string, data []byte, selector domain.ColumnSelector, events chan<- domain.StageEvent) (*extract.Result, error) {
	f.uploaded = name
	f.data = data
	if f.err != nil {
		return nil, f.err
	}
	t, err := f.svc.Extract(ctx, f.text, selector, events)
	if err != nil {
		return nil, err
	}
	return &extract.Result{
		ID:        uuid.MustParse("7d2c1f0e-3a4b-4c5d-8e6f-0a1b2c3d4e5f"),
		Table:     t,
		Location:  "memory",
		ImageName: name,
		Duration:  1500 * time.Millisecond,
	}, nil
}

func (f *fakeExtractor) Parse(ctx context.Context, raw string, selector domain.ColumnSelector) (domain.Table, error) {
	return f.svc.Extract(ctx, raw, selector, nil)
}

type fakeHistory struct {
	records []domain.ExtractionRecord
	err     error
	limit   int
}

func (f *fakeHistory) List(_ context.Context, limit int) ([]domain.ExtractionRecord, error) {
	f.limit = limit
	return f.records, f.err
}

func (f *fakeHistory) Get(_ context.Context, id uuid.UUID) (*domain.ExtractionRecord, error) {
	for i := range f.records {
		if f.records[i].ID == id {
			return &f.records[i], nil
		}
	}
	return nil, storage.ErrNotFound
}

func multipartImage(t *testing.T, name string, data []byte, columns string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	if columns != "" {
		require.NoError(t, mw.WriteField("columns", columns))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	r := NewRouter(nil, newFakeExtractor(""), nil, RouterConfig{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","service":"table-extractor"}`, rec.Body.String())
}

func TestCreateExtraction(t *testing.T) {
	fx := newFakeExtractor("```csv\nName,Age,City\nAlice,30,Paris\n```")
	r := NewRouter(nil, fx, nil, RouterConfig{})

	body, ct := multipartImage(t, "scan.png", []byte("png-bytes"), "Name, City")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extractions", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "scan.png", fx.uploaded)
	assert.Equal(t, []byte("png-bytes"), fx.data)

	var dto TableResponseDTO
	decodeBody(t, rec, &dto)
	assert.Equal(t, "7d2c1f0e-3a4b-4c5d-8e6f-0a1b2c3d4e5f", dto.ID)
	assert.Equal(t, "scan.png", dto.Image)
	assert.Equal(t, []string{"Name", "City"}, dto.Header)
	assert.Equal(t, [][]string{{"Alice", "Paris"}}, dto.Rows)
	assert.Equal(t, "Name,City\nAlice,Paris\n", dto.CSV)
	assert.Equal(t, int64(1500), dto.DurationMs)
}

func TestCreateExtraction_CSV(t *testing.T) {
	fx := newFakeExtractor("Name,Age\nAlice,30")
	r := NewRouter(nil, fx, nil, RouterConfig{})

	body, ct := multipartImage(t, "scan.png", []byte("x"), "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extractions", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Accept", "text/csv")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "results.csv")
	assert.Equal(t, "Name,Age\nAlice,30\n", rec.Body.String())
}

func TestCreateExtraction_MissingImage(t *testing.T) {
	r := NewRouter(nil, newFakeExtractor(""), nil, RouterConfig{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("columns", "Name"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/extractions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.Equal(t, "image file is required", resp["error"])
}

func TestCreateExtraction_UploadTooLarge(t *testing.T) {
	r := NewRouter(nil, newFakeExtractor(""), nil, RouterConfig{MaxUploadBytes: 64})

	body, ct := multipartImage(t, "scan.png", bytes.Repeat([]byte("x"), 1024), "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extractions", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateExtraction_ModelFailure(t *testing.T) {
	fx := newFakeExtractor("")
	fx.err = &domain.StageError{
		Stage:  domain.StageQueryModel,
		Reason: "vision model request failed",
		Err:    domain.APIError("API returned status 500", nil),
	}
	r := NewRouter(nil, fx, nil, RouterConfig{})

	body, ct := multipartImage(t, "scan.png", []byte("x"), "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extractions", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var resp map[string]string
	decodeBody(t, rec, &resp)
	assert.Equal(t, "vision model request failed", resp["error"])
	assert.Equal(t, "query_model", resp["detail"])
}

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		query      string
		wantStatus int
		wantHeader []string
		wantRows   [][]string
	}{
		{
			name:       "all columns",
			body:       "```\nName,Age\nAlice,30\nBob,\n```",
			wantStatus: http.StatusOK,
			wantHeader: []string{"Name", "Age"},
			wantRows:   [][]string{{"Alice", "30"}, {"Bob", ""}},
		},
		{
			name:       "selected columns",
			body:       "Name,Age\nAlice,30",
			query:      "?columns=Age",
			wantStatus: http.StatusOK,
			wantHeader: []string{"Age"},
			wantRows:   [][]string{{"30"}},
		},
		{
			name:       "header only",
			body:       "Name,Age",
			wantStatus: http.StatusOK,
			wantHeader: []string{"Name", "Age"},
			wantRows:   [][]string{},
		},
		{
			name:       "empty response",
			body:       "```\n```",
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "malformed",
			body:       "Name,\"Age\n1,2",
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "unknown column",
			body:       "Name,Age\nAlice,30",
			query:      "?columns=Email",
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(nil, newFakeExtractor(""), nil, RouterConfig{})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/parse"+tt.query, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				var resp map[string]string
				decodeBody(t, rec, &resp)
				assert.NotEmpty(t, resp["error"])
				return
			}

			var dto TableResponseDTO
			decodeBody(t, rec, &dto)
			assert.Equal(t, tt.wantHeader, dto.Header)
			assert.Equal(t, tt.wantRows, dto.Rows)
		})
	}
}

func TestParse_FormatQuery(t *testing.T) {
	r := NewRouter(nil, newFakeExtractor(""), nil, RouterConfig{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/parse?format=csv", strings.NewReader("a,b\n\"x,y\",z"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a,b\n\"x,y\",z\n", rec.Body.String())
}

func TestListExtractions(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	id := uuid.New()
	hist := &fakeHistory{records: []domain.ExtractionRecord{{
		ID:          id,
		ImageName:   "scan.png",
		Model:       "gpt-4o-mini",
		Location:    "/tmp/results.csv",
		Columns:     []string{"Name"},
		RowCount:    2,
		ColumnCount: 1,
		Status:      domain.StatusDone,
		Stage:       domain.StageDone,
		StartedAt:   started,
		FinishedAt:  started.Add(time.Second),
	}}}
	r := NewRouter(nil, newFakeExtractor(""), hist, RouterConfig{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/extractions?limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, hist.limit)

	var resp struct {
		Extractions []ExtractionDTO `json:"extractions"`
	}
	decodeBody(t, rec, &resp)
	require.Len(t, resp.Extractions, 1)
	got := resp.Extractions[0]
	assert.Equal(t, id.String(), got.ID)
	assert.Equal(t, "done", got.Status)
	assert.Equal(t, []string{"Name"}, got.Columns)
	assert.Equal(t, "2026-03-01T10:00:00Z", got.StartedAt)
}

func TestListExtractions_Errors(t *testing.T) {
	tests := []struct {
		name       string
		history    History
		url        string
		wantStatus int
	}{
		{"disabled", nil, "/api/v1/extractions", http.StatusServiceUnavailable},
		{"bad limit", &fakeHistory{}, "/api/v1/extractions?limit=zero", http.StatusBadRequest},
		{"negative limit", &fakeHistory{}, "/api/v1/extractions?limit=-1", http.StatusBadRequest},
		{"store failure", &fakeHistory{err: errors.New("disk full")}, "/api/v1/extractions", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRouter(nil, newFakeExtractor(""), tt.history, RouterConfig{})
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestGetExtraction(t *testing.T) {
	id := uuid.New()
	hist := &fakeHistory{records: []domain.ExtractionRecord{{ID: id, ImageName: "a.png", Status: domain.StatusFailed, Reason: "no columns selected"}}}
	r := NewRouter(nil, newFakeExtractor(""), hist, RouterConfig{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/extractions/"+id.String(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var dto ExtractionDTO
	decodeBody(t, rec, &dto)
	assert.Equal(t, "no columns selected", dto.Reason)
	assert.Equal(t, []string{}, dto.Columns)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/extractions/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/extractions/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrNoColumnsSelected, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", domain.ErrEmptyTable), http.StatusUnprocessableEntity},
		{&domain.MalformedCSVError{Line: 1}, http.StatusUnprocessableEntity},
		{domain.ValidationError("bad image", nil), http.StatusBadRequest},
		{domain.APIError("upstream", nil), http.StatusBadGateway},
		{domain.ConfigError("no key", nil), http.StatusServiceUnavailable},
		{&domain.StageError{Reason: "cancelled", Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}
