package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appanalyzers "github.com/bryanwahyu/cu-orchestrator/internal/application/analyzers"
	"github.com/bryanwahyu/cu-orchestrator/internal/domain/journal"
	"github.com/bryanwahyu/cu-orchestrator/internal/domain/operation"
	domain "github.com/bryanwahyu/cu-orchestrator/internal/domain/staging"
	"github.com/bryanwahyu/cu-orchestrator/internal/infra/cu"
	"github.com/bryanwahyu/cu-orchestrator/internal/logger"
	"github.com/bryanwahyu/cu-orchestrator/internal/middleware"
)

// DefaultMaxUploadBytes batas body untuk analyze binary
const DefaultMaxUploadBytes = 200 << 20

// AnalyzerService is what the gateway needs from the application layer.
type AnalyzerService interface {
	CreateFromStagedData(ctx context.Context, cmd appanalyzers.CreateCommand) (appanalyzers.Result, error)
	AnalyzeURL(ctx context.Context, tenant, analyzerID, inputURL string) (appanalyzers.Result, error)
	AnalyzeReader(ctx context.Context, tenant, analyzerID string, r io.Reader, contentType string) (appanalyzers.Result, error)
	Classify(ctx context.Context, tenant, classifierID, inputURL string) (appanalyzers.Result, error)
	Delete(ctx context.Context, analyzerID string) error
	List(ctx context.Context) ([]*cu.Object, error)
	Latest(ctx context.Context, tenant string, limit int) ([]*journal.Record, error)
	Get(ctx context.Context, tenant string, id journal.RecordID) (*journal.Record, error)
	Operations(ctx context.Context, tenant string, page, pageSize int, f journal.Filter) (journal.Page, error)
}

type Options struct {
	Service        AnalyzerService
	Log            *slog.Logger
	APIKeys        map[string]string // tenant -> key; empty disables auth
	CORSOrigins    []string
	Limiter        *middleware.RateLimiter
	HTTPMetrics    *middleware.Metrics
	MetricsHandler http.Handler
	Checkers       map[string]middleware.HealthChecker
	MaxUploadBytes int64
}

type Router struct {
	svc       AnalyzerService
	log       *slog.Logger
	maxUpload int64
}

func NewRouter(opt Options) http.Handler {
	log := opt.Log
	if log == nil {
		log = slog.Default()
	}
	r := &Router{svc: opt.Service, log: log, maxUpload: opt.MaxUploadBytes}
	if r.maxUpload <= 0 {
		r.maxUpload = DefaultMaxUploadBytes
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Logging(log))
	if opt.HTTPMetrics != nil {
		mux.Use(opt.HTTPMetrics.Middleware)
	}
	if len(opt.CORSOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opt.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", middleware.HeaderRequestID},
			ExposedHeaders: []string{middleware.HeaderRequestID},
			MaxAge:         300,
		}))
	}
	if len(opt.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(opt.APIKeys))
	}
	if opt.Limiter != nil {
		mux.Use(middleware.RateLimitMiddleware(opt.Limiter))
	}

	mux.Get("/health", middleware.HealthHandler(opt.Checkers))
	mux.Get("/healthz", middleware.LivenessHandler)
	if opt.MetricsHandler != nil {
		mux.Handle("/metrics", opt.MetricsHandler)
	}

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Use(middleware.RequireTenant)

		rt.Get("/analyzers", r.wrap(r.handleList))
		rt.Put("/analyzers/{id}", r.wrap(r.handleCreate))
		rt.Delete("/analyzers/{id}", r.wrap(r.handleDelete))
		rt.Post("/analyzers/{id}:analyze", r.wrap(r.handleAnalyze))
		rt.Post("/classifiers/{id}:classify", r.wrap(r.handleClassify))

		rt.Get("/operations", r.wrap(r.handleOperations))
		rt.Get("/operations/latest", r.wrap(r.handleLatest))
		rt.Get("/operations/{id}", r.wrap(r.handleGetOperation))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks caller input errors.
type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func invalid(format string, args ...any) error { return badRequest{msg: fmt.Sprintf(format, args...)} }

type errorBody struct {
	Error    string `json:"error"`
	Code     string `json:"code,omitempty"`
	RecordID string `json:"record_id,omitempty"`
}

// resultError carries the journal record id of a failed workflow to the client.
type resultError struct {
	recordID string
	err      error
}

func (e *resultError) Error() string { return e.err.Error() }
func (e *resultError) Unwrap() error { return e.err }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status, code := StatusFor(err)
		body := errorBody{Error: err.Error(), Code: code}
		var re *resultError
		if errors.As(err, &re) {
			body.RecordID = re.recordID
		}
		log := logger.FromContext(req.Context(), r.log)
		if status >= 500 {
			log.Error("http.handler.error", "status", status, "error", err)
		} else {
			log.Warn("http.handler.error", "status", status, "error", err)
		}
		writeJSON(w, status, body)
	}
}

// StatusFor maps workflow errors onto gateway responses.
func StatusFor(err error) (int, string) {
	var (
		br  badRequest
		sub *operation.SubmissionError
	)
	switch {
	case errors.As(err, &br), cu.IsRequestError(err):
		return http.StatusBadRequest, "BadRequest"
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound, "NotFound"
	case errors.Is(err, appanalyzers.ErrNoJournal):
		return http.StatusNotImplemented, "NoJournal"
	case errors.Is(err, operation.ErrPrecondition):
		return http.StatusPreconditionFailed, "PreconditionFailed"
	case errors.Is(err, operation.ErrAuth):
		return http.StatusBadGateway, "UpstreamAuthFailed"
	case errors.As(err, &sub):
		if sub.StatusCode >= 400 {
			return sub.StatusCode, orDefault(sub.Detail.Code, "SubmissionRejected")
		}
		return http.StatusBadGateway, "SubmissionRejected"
	case errors.Is(err, operation.ErrOperationFailed):
		var failed *operation.OperationFailedError
		if errors.As(err, &failed) && failed.Detail.Code != "" {
			return http.StatusUnprocessableEntity, failed.Detail.Code
		}
		return http.StatusUnprocessableEntity, "OperationFailed"
	case errors.Is(err, operation.ErrTimeout):
		return http.StatusGatewayTimeout, "Timeout"
	case errors.Is(err, operation.ErrTransport):
		return http.StatusBadGateway, "TransportError"
	case errors.Is(err, context.Canceled):
		return 499, "Cancelled"
	}
	return http.StatusInternalServerError, "InternalError"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func finish(w http.ResponseWriter, res appanalyzers.Result, err error) error {
	if err != nil {
		if res.RecordID != "" {
			return &resultError{recordID: res.RecordID, err: err}
		}
		return err
	}
	writeJSON(w, http.StatusOK, res)
	return nil
}

func pathID(req *http.Request) (string, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateResourceID(id); err != nil {
		return "", invalid("%v", err)
	}
	return id, nil
}

// PUT /v1/{tenant}/analyzers/{id}
// Body: {"template": {...}, "mode": "standard-training", "prefix": "train/", "files": ["a.pdf"]}
func (r *Router) handleCreate(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id, err := pathID(req)
	if err != nil {
		return err
	}

	var body struct {
		Template json.RawMessage `json:"template"`
		Mode     string          `json:"mode"`
		Prefix   string          `json:"prefix"`
		Files    []string        `json:"files"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return invalid("decode body: %v", err)
	}
	mode, err := domain.ParseMode(body.Mode)
	if err != nil {
		return invalid("%v", err)
	}
	if err := middleware.ValidatePrefix(body.Prefix); err != nil {
		return invalid("%v", err)
	}

	var tmpl *cu.Object
	if len(body.Template) > 0 && string(body.Template) != "null" {
		if tmpl, err = cu.ParseObject(body.Template); err != nil {
			return invalid("template: %v", err)
		}
	}

	res, err := r.svc.CreateFromStagedData(req.Context(), appanalyzers.CreateCommand{
		TenantID:   tenant,
		AnalyzerID: id,
		Template:   tmpl,
		Mode:       mode,
		Prefix:     body.Prefix,
		Files:      body.Files,
		Staged:     body.Prefix != "" || len(body.Files) > 0,
	})
	return finish(w, res, err)
}

// POST /v1/{tenant}/analyzers/{id}:analyze
// JSON body {"url": "..."} or the raw file bytes with their content type.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id, err := pathID(req)
	if err != nil {
		return err
	}

	ct := req.Header.Get("Content-Type")
	if mt, _, _ := mime.ParseMediaType(ct); mt == "application/json" {
		inputURL, err := decodeURL(req)
		if err != nil {
			return err
		}
		res, err := r.svc.AnalyzeURL(req.Context(), tenant, id, inputURL)
		return finish(w, res, err)
	}

	if ct == "" {
		ct = "application/octet-stream"
	}
	res, err := r.svc.AnalyzeReader(req.Context(), tenant, id, http.MaxBytesReader(w, req.Body, r.maxUpload), ct)
	return finish(w, res, err)
}

// POST /v1/{tenant}/classifiers/{id}:classify  Body: {"url": "..."}
func (r *Router) handleClassify(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id, err := pathID(req)
	if err != nil {
		return err
	}
	inputURL, err := decodeURL(req)
	if err != nil {
		return err
	}
	res, err := r.svc.Classify(req.Context(), tenant, id, inputURL)
	return finish(w, res, err)
}

func decodeURL(req *http.Request) (string, error) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return "", invalid("decode body: %v", err)
	}
	if err := middleware.ValidateInputURL(body.URL); err != nil {
		return "", invalid("%v", err)
	}
	return body.URL, nil
}

// DELETE /v1/{tenant}/analyzers/{id}
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req)
	if err != nil {
		return err
	}
	if err := r.svc.Delete(req.Context(), id); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

// GET /v1/{tenant}/analyzers
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	list, err := r.svc.List(req.Context())
	if err != nil {
		return err
	}
	if list == nil {
		list = []*cu.Object{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"value": list})
	return nil
}

// GET /v1/{tenant}/operations?page=&page_size=&kind=&status=&target=
func (r *Router) handleOperations(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	q := req.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))

	out, err := r.svc.Operations(req.Context(), tenant, page, middleware.ValidateLimit(size), journal.Filter{
		Kind:   strings.TrimSpace(q.Get("kind")),
		Status: strings.TrimSpace(q.Get("status")),
		Target: strings.TrimSpace(q.Get("target")),
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

// GET /v1/{tenant}/operations/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.svc.Latest(req.Context(), tenant, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*journal.Record{}
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}

// GET /v1/{tenant}/operations/{id}
func (r *Router) handleGetOperation(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")

	rec, err := r.svc.Get(req.Context(), tenant, journal.RecordID(id))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rec)
	return nil
}
