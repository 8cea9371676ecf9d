package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/bryanwahyu/docrisk/internal/application/assessments"
	"github.com/bryanwahyu/docrisk/internal/domain/ai"
	"github.com/bryanwahyu/docrisk/internal/domain/document"
	"github.com/bryanwahyu/docrisk/internal/logging"
	"github.com/bryanwahyu/docrisk/internal/middleware"
)

const multipartMemory = 8 << 20

// errBadRequest marks request errors detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

// Options configure the HTTP surface around the assessment service.
type Options struct {
	Logger         *slog.Logger
	APIKeys        map[string]string
	AllowedOrigins []string
	MaxUploadBytes int64
	// UploadLimiter throttles document submissions; nil disables it.
	UploadLimiter *middleware.RateLimiter
	// Probe backs /health and /ready; nil reports healthy with no checks.
	Probe *middleware.Probe
}

type Router struct {
	svc       *assessments.Service
	log       *slog.Logger
	maxUpload int64
}

func NewRouter(svc *assessments.Service, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	r := &Router{svc: svc, log: log, maxUpload: maxUpload}

	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware(log))
	mux.Use(middleware.MetricsMiddleware)
	if len(opts.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins: opts.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         300,
		}))
	}
	if len(opts.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(opts.APIKeys))
	}

	probe := opts.Probe
	if probe == nil {
		probe = &middleware.Probe{}
	}
	mux.Get("/health", probe.Health)
	mux.Get("/ready", probe.Ready)
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1/{tenant}", func(rt chi.Router) {
		rt.Use(middleware.RequireValidTenant)
		upload := rt.With()
		if opts.UploadLimiter != nil {
			upload = rt.With(middleware.RateLimit(opts.UploadLimiter))
		}
		upload.Post("/documents", r.wrap(r.handleSubmit))
		rt.Get("/assessments/latest", r.wrap(r.handleLatest))
		rt.Get("/assessments/{id}", r.wrap(r.handleGet))
		rt.Get("/summary", r.wrap(r.handleSummary))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, document.ErrNotFound):
			http.Error(w, "not found", http.StatusNotFound)
		case errors.Is(err, errBadRequest), errors.Is(err, assessments.ErrInvalidInput):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.As(err, &tooLarge):
			http.Error(w, fmt.Sprintf("document exceeds %d bytes", r.maxUpload), http.StatusRequestEntityTooLarge)
		case errors.Is(err, ai.ErrQuotaExceeded):
			http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
		case errors.Is(err, document.ErrCanceled):
			http.Error(w, "analysis canceled", http.StatusServiceUnavailable)
		default:
			logging.FromContext(req.Context(), r.log).Error("request failed", "path", req.URL.Path, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// POST /v1/{tenant}/documents
// multipart: file (required), extraction (optional JSON document.Extraction)
func (r *Router) handleSubmit(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	// extraction text and multipart framing ride on top of the document
	req.Body = http.MaxBytesReader(w, req.Body, r.maxUpload+4<<20)
	if err := req.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	defer req.MultipartForm.RemoveAll()

	file, header, err := req.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: file part is required", errBadRequest)
	}
	defer file.Close()
	if header.Size > r.maxUpload {
		return &http.MaxBytesError{Limit: r.maxUpload}
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}

	var ext document.Extraction
	if raw := req.FormValue("extraction"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &ext); err != nil {
			return fmt.Errorf("%w: extraction: %v", errBadRequest, err)
		}
		if err := middleware.ValidateExtraction(ext); err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
	}

	done := middleware.AssessmentStarted()
	res, err := r.svc.Submit(req.Context(), assessments.SubmitCommand{
		TenantID:    tenant,
		Filename:    middleware.SanitizeFilename(header.Filename),
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Extraction:  ext,
	})
	if err != nil {
		done(nil)
		return err
	}
	done(&res.Assessment.Verdict)

	body := newRiskAssessment(res.Assessment)
	body.Digest, body.ArchiveURL, body.DurationMS = res.Digest, res.ArchiveURL, res.DurationMS
	return writeJSON(w, http.StatusCreated, body)
}

// GET /v1/{tenant}/assessments/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.svc.Latest(req.Context(), tenant, middleware.ValidateLimit(limit))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/{tenant}/assessments/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateDocumentID(id); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}

	a, err := r.svc.Get(req.Context(), tenant, document.ID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, newRiskAssessment(*a))
}

// GET /v1/{tenant}/summary?days=7
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	tenant := chi.URLParam(req, "tenant")
	days, _ := strconv.Atoi(req.URL.Query().Get("days"))

	summary, err := r.svc.Summary(req.Context(), tenant, middleware.ValidateDays(days))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, summary)
}
