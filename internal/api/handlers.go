// Package api exposes the REST and MCP surfaces over the analysis
// service, the job store, and the query engine.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/clauselens/clauselens/internal/analysis"
	"github.com/clauselens/clauselens/internal/extract"
	"github.com/clauselens/clauselens/internal/jobs"
	"github.com/clauselens/clauselens/internal/query"
)

// DocumentSubmitter accepts a new document for background analysis.
// Satisfied by analysis.Service.
type DocumentSubmitter interface {
	SubmitDocument(documentID, filename string, data []byte, enhance bool) error
}

// JobReader serves job status and completed results. Satisfied by
// jobs.Store.
type JobReader interface {
	Get(documentID string) (jobs.Job, error)
	CompletedResult(documentID string) (*analysis.Result, error)
}

// Answerer resolves questions about an analyzed document. Satisfied by
// query.Engine.
type Answerer interface {
	Answer(ctx context.Context, documentID, question string) (*query.Response, error)
}

// AppDeps holds everything the HTTP handlers need.
type AppDeps struct {
	Service        DocumentSubmitter
	Jobs           JobReader
	Query          Answerer
	Token          string // empty disables auth
	MaxUploadBytes int64
	EnhanceDefault bool
	Logger         *slog.Logger
}

// NewAppHandler builds the REST router. /health stays outside auth so
// probes work without the token.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 10 << 20
	}

	r := chi.NewRouter()
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/upload", handleUpload(deps))
		r.Get("/status/{id}", handleStatus(deps))
		r.Get("/analysis/{id}", handleAnalysis(deps))
		r.Post("/query", handleQuery(deps))
	})

	return r
}

func handleUpload(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes)
		defer r.Body.Close()

		if err := r.ParseMultipartForm(deps.MaxUploadBytes); err != nil {
			if isBodyTooLarge(err) {
				httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error",
					"file exceeds the %d byte limit", deps.MaxUploadBytes)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file field is required")
			return
		}
		defer file.Close()

		if !extract.Supported(header.Filename) {
			httpError(w, http.StatusUnsupportedMediaType, "invalid_request_error",
				"unsupported file type %q; supported: %v", header.Filename, extract.SupportedExtensions())
			return
		}

		data, err := io.ReadAll(file)
		if err != nil {
			if isBodyTooLarge(err) {
				httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error",
					"file exceeds the %d byte limit", deps.MaxUploadBytes)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read file: %v", err)
			return
		}

		enhance := deps.EnhanceDefault
		if v := r.FormValue("enhance"); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				enhance = b
			}
		}

		documentID := uuid.New().String()
		if err := deps.Service.SubmitDocument(documentID, header.Filename, data, enhance); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to queue analysis: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"document_id": documentID,
			"status":      string(jobs.StatusPending),
		})
	}
}

func handleStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := deps.Jobs.Get(id)
		if errors.Is(err, jobs.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "unknown document id %q", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load status: %v", err)
			return
		}

		resp := map[string]any{
			"document_id":  job.DocumentID,
			"status":       string(job.Status),
			"progress":     job.Progress,
			"current_step": job.CurrentStep,
		}
		if job.ErrorMessage != "" {
			resp["error_message"] = job.ErrorMessage
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleAnalysis(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := deps.Jobs.Get(id)
		if errors.Is(err, jobs.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "unknown document id %q", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load job: %v", err)
			return
		}

		switch job.Status {
		case jobs.StatusFailed:
			httpError(w, http.StatusUnprocessableEntity, "analysis_failed", "%s", job.ErrorMessage)
			return
		case jobs.StatusCompleted:
		default:
			httpError(w, http.StatusConflict, "not_ready",
				"analysis in progress (%d%%, %s)", job.Progress, job.CurrentStep)
			return
		}

		result, err := deps.Jobs.CompletedResult(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load result: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

type queryRequest struct {
	DocumentID string `json:"document_id"`
	Query      string `json:"query"`
}

func handleQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.DocumentID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document_id is required")
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		resp, err := deps.Query.Answer(r.Context(), req.DocumentID, req.Query)
		if errors.Is(err, jobs.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found",
				"no completed analysis for document %q", req.DocumentID)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "query failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	// multipart wraps the limit error without exposing the type
	return err != nil && strings.Contains(err.Error(), "request body too large")
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
