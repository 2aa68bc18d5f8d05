// Package api exposes the pipeline over HTTP.
//
// Routes:
//
//	GET /v1/affected?radius=<km>  run one snapshot, answer with report.Document
//	GET /healthz                  liveness and reference table size
//	GET /metrics                  Prometheus exposition
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/thomhuang/FireZipCodes/internal/pipeline"
	"github.com/thomhuang/FireZipCodes/internal/report"
	"github.com/thomhuang/FireZipCodes/internal/types"
)

// Runner runs one snapshot. *pipeline.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, radiusKM float64) (*pipeline.Result, error)
}

// ErrorResponse is the envelope for every error answer.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the client-facing part of an error.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Handler maps HTTP requests onto the pipeline.
type Handler struct {
	runner      Runner
	postalAreas int
	metrics     http.Handler
	logger      *slog.Logger
}

// NewHandler builds a Handler. metrics serves /metrics and may be nil.
func NewHandler(runner Runner, postalAreas int, metrics http.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		runner:      runner,
		postalAreas: postalAreas,
		metrics:     metrics,
		logger:      logger,
	}
}

// Router returns the complete route table.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.HandleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	r.Route("/v1", h.RegisterRoutes)
	return r
}

// RegisterRoutes mounts the versioned endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/affected", h.HandleAffected)
}

// HandleAffected handles GET /v1/affected.
func (h *Handler) HandleAffected(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("radius")
	if raw == "" {
		h.writeError(w, r, types.NewInvalidArgument("query parameter radius is required"))
		return
	}
	radius, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		h.writeError(w, r, types.NewInvalidArgument(fmt.Sprintf("radius %q is not a number", raw)))
		return
	}

	res, err := h.runner.Run(r.Context(), radius)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report.NewDocument(res))
}

// HandleHealth handles GET /healthz.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"postal_areas": h.postalAreas,
	})
}

// writeError answers with the status of err's code. Only AppError and
// ParseError messages reach the client; anything else is reported as an
// unexpected failure.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := types.CodeOf(err)
	detail := ErrorDetail{
		Code:      string(code),
		Message:   "an unexpected error occurred",
		RequestID: middleware.GetReqID(r.Context()),
	}

	var ae *types.AppError
	var pe *types.ParseError
	switch {
	case errors.As(err, &pe):
		detail.Message = pe.Error()
	case errors.As(err, &ae):
		detail.Message = ae.Message
	}

	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, ErrorResponse{Error: detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"internal_unexpected","message":"failed to marshal response"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
