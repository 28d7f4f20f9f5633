package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/efebarandurmaz/docrag/internal/observability"
	"github.com/efebarandurmaz/docrag/internal/rag"
	"github.com/efebarandurmaz/docrag/internal/trigger"
)

// maxEventBytes bounds request bodies; events are small JSON objects.
const maxEventBytes = 1 << 20

// ErrorResponse is the body returned for a failed event.
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

// API accepts ingest and query events over HTTP and runs them on a backend.
type API struct {
	backend trigger.Backend
	metrics *observability.RAGMetrics
	health  *HealthServer
	logger  *slog.Logger
}

// NewAPI creates an API. metrics and health may be nil.
func NewAPI(backend trigger.Backend, metrics *observability.RAGMetrics, health *HealthServer, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{backend: backend, metrics: metrics, health: health, logger: logger}
}

// Router builds the HTTP routes.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(a.loggingMiddleware)
	r.Use(corsMiddleware)

	r.HandleFunc("/v1/events/ingest", a.handleIngest).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/v1/events/query", a.handleQuery).Methods(http.MethodPost, http.MethodOptions)
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics.Handler()).Methods(http.MethodGet)
	}
	if a.health != nil {
		a.health.RegisterRoutes(r)
	}
	return r
}

func (a *API) handleIngest(w http.ResponseWriter, r *http.Request) {
	var ev rag.IngestEvent
	if !decodeEvent(w, r, &ev) {
		return
	}
	if ev.PDFPath == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "pdf_path is required"})
		return
	}

	result, err := a.backend.Ingest(r.Context(), ev)
	if err != nil {
		a.writeError(w, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleQuery(w http.ResponseWriter, r *http.Request) {
	var ev rag.QueryEvent
	if !decodeEvent(w, r, &ev) {
		return
	}
	if ev.Question == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "question is required"})
		return
	}

	result, err := a.backend.Query(r.Context(), ev)
	if err != nil {
		a.writeError(w, "query", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeEvent(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func (a *API) writeError(w http.ResponseWriter, op string, err error) {
	status := StatusFor(err)
	a.logger.Warn("event failed", "op", op, "status", status, "error", err)
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Retryable: rag.IsRetryable(err)})
}

// StatusFor maps a run error to an HTTP status.
func StatusFor(err error) int {
	var loadErr *rag.LoadError
	switch {
	case errors.Is(err, rag.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.As(err, &loadErr):
		return http.StatusUnprocessableEntity
	case rag.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
