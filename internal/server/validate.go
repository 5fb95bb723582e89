package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/YARL-project/YARL/internal/document"
	"github.com/YARL-project/YARL/internal/metrics"
	"github.com/YARL-project/YARL/internal/registry"
)

// ValidationHandler validates posted documents and, when a registry is
// configured, stores every report.
type ValidationHandler struct {
	validator    *document.Validator
	store        *registry.Store
	metrics      *metrics.Collector
	logger       *zap.Logger
	maxBodyBytes int64
}

// NewValidationHandler wires /validate, /reports and /healthz. store and m may be nil.
func NewValidationHandler(v *document.Validator, store *registry.Store, m *metrics.Collector, logger *zap.Logger, maxBodyBytes int64) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ValidationHandler{
		validator:    v,
		store:        store,
		metrics:      m,
		logger:       logger.With(zap.String("component", "validation-api")),
		maxBodyBytes: maxBodyBytes,
	}

	mux := http.NewServeMux()
	h.handle(mux, "/healthz", http.HandlerFunc(healthz))
	h.handle(mux, "/validate", http.HandlerFunc(h.validate))
	h.handle(mux, "/reports", http.HandlerFunc(h.list))
	h.handle(mux, "/reports/{id}", http.HandlerFunc(h.get))
	if m != nil {
		mux.Handle("/metrics", m.Handler())
	}
	return mux
}

func (h *ValidationHandler) handle(mux *http.ServeMux, pattern string, fn http.Handler) {
	if h.metrics != nil {
		fn = h.metrics.Middleware(pattern, fn)
	}
	mux.Handle(pattern, fn)
}

// validate accepts ?kind=agent|topology (default: detect), ?format=json|yaml
// (default: from Content-Type, else json) and ?strict=true.
func (h *ValidationHandler) validate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	kind, err := document.ParseKind(q.Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	format := requestFormat(r)

	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	v := h.validator
	if q.Get("strict") == "true" && !v.Strict {
		strict := *v
		strict.Strict = true
		v = &strict
	}
	report := v.CheckBytes(data, format, kind)
	report.Path = q.Get("name")

	if h.store != nil {
		saved, err := h.store.Save(r.Context(), report)
		if err != nil {
			h.logger.Error("store report", zap.Error(err))
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		report = saved
	}

	status := http.StatusOK
	if !report.Valid {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}

func requestFormat(r *http.Request) document.Format {
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "yaml", "yml":
		return document.FormatYAML
	case "json":
		return document.FormatJSON
	}
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		return document.FormatYAML
	}
	return document.FormatJSON
}

func (h *ValidationHandler) get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, errors.New("report storage is disabled"))
		return
	}
	report, err := h.store.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

type listResponse struct {
	Reports []document.Report `json:"reports"`
}

func (h *ValidationHandler) list(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, errors.New("report storage is disabled"))
		return
	}
	q := r.URL.Query()
	kind, err := document.ParseKind(q.Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reports, err := h.store.List(r.Context(), registry.Filter{
		Kind:   kind,
		Digest: q.Get("digest"),
		Limit:  queryInt(r, "limit", 0),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if reports == nil {
		reports = []document.Report{}
	}
	writeJSON(w, http.StatusOK, listResponse{Reports: reports})
}
