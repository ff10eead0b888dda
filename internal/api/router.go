// Package api serves the extractor over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/table-extractor/internal/observability"
)

// RouterConfig holds HTTP limits.
type RouterConfig struct {
	RequestTimeout time.Duration
	MaxUploadBytes int64
}

// NewRouter creates the API router with all routes configured. history may
// be nil when history is disabled.
func NewRouter(logger *observability.Logger, extractor Extractor, history History, cfg RouterConfig) http.Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestContext)
	r.Use(requestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"table-extractor"}`))
	})

	h := NewHandler(logger, extractor, history, cfg.MaxUploadBytes)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/parse", h.Parse)

		r.Route("/extractions", func(r chi.Router) {
			r.Post("/", h.CreateExtraction)
			r.Get("/", h.ListExtractions)
			r.Get("/{id}", h.GetExtraction)
		})
	})

	return r
}

// requestContext copies chi's request ID into the logging context.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := chimiddleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(observability.ContextWithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.WithContext(r.Context()).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		})
	}
}
