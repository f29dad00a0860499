package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/sentrastack/sentra-diag/internal/metrics"
	"github.com/sentrastack/sentra-diag/internal/models"
	"github.com/sentrastack/sentra-diag/internal/utils"
)

// Service is the analysis-core behaviour the handlers depend on.
type Service interface {
	Analyze(req models.AnalyzeRequest) (string, error)
	Status(id string) (models.StatusResponse, error)
	Result(id string) (*models.AnalysisReport, error)
	Cleanup(id string) error
}

// Handler serves the four-operation analysis contract as JSON over HTTP.
type Handler struct {
	logger         *slog.Logger
	service        Service
	maxUploadBytes int64
}

// NewHandler constructs the HTTP handler set.
func NewHandler(logger *slog.Logger, service Service, maxUploadBytes int64) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 64 << 20
	}
	return &Handler{logger: logger, service: service, maxUploadBytes: maxUploadBytes}
}

// Router builds the route table.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/v1/analyze", h.handleAnalyze).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/sessions/{id}/status", h.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/sessions/{id}/result", h.handleResult).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/sessions/{id}/cleanup", h.handleCleanup).Methods(http.MethodPost)
	router.HandleFunc("/healthz", h.handleHealthz).Methods(http.MethodGet)
	router.Use(h.observe)
	return router
}

// observe counts served requests per route and status code.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		metrics.ObserveHTTPRequest(route, strconv.Itoa(recorder.code))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	req, err := h.decodeAnalyzeRequest(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	id, err := h.service.Analyze(req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"session_id": id})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Status(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Result(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Cleanup(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleaned"})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeAnalyzeRequest accepts either a multipart upload (file parts plus an
// analysis_type form value) or a JSON body with inline file contents.
func (h *Handler) decodeAnalyzeRequest(r *http.Request) (models.AnalyzeRequest, error) {
	const op = "api.decodeAnalyzeRequest"

	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if contentType == "multipart/form-data" {
		if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
			return models.AnalyzeRequest{}, utils.NewAppError(op, utils.KindInvalidArgument, "bad multipart body", err)
		}
		req := models.AnalyzeRequest{AnalysisType: r.FormValue("analysis_type")}
		for _, headers := range r.MultipartForm.File {
			for _, header := range headers {
				file, err := header.Open()
				if err != nil {
					return models.AnalyzeRequest{}, utils.NewAppError(op, utils.KindInvalidArgument, "unreadable file part", err)
				}
				data, err := io.ReadAll(file)
				file.Close()
				if err != nil {
					return models.AnalyzeRequest{}, utils.NewAppError(op, utils.KindInvalidArgument, "unreadable file part", err)
				}
				req.Files = append(req.Files, models.BundleFile{Name: header.Filename, Data: data})
			}
		}
		return req, nil
	}

	var req models.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return models.AnalyzeRequest{}, utils.NewAppError(op, utils.KindInvalidArgument, "bad request body", err)
	}
	return req, nil
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("response encode failed", slog.Any("error", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := utils.KindOf(err)
	code := statusForKind(kind)
	if code >= http.StatusInternalServerError {
		h.logger.Error("request failed", slog.Any("error", err))
	}

	message := err.Error()
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		message = appErr.Msg
	}
	h.writeJSON(w, code, map[string]string{
		"error": message,
		"kind":  string(kind),
	})
}

func statusForKind(kind utils.Kind) int {
	switch kind {
	case utils.KindInvalidArgument, utils.KindUnsupportedFormat, utils.KindMalformedInput:
		return http.StatusBadRequest
	case utils.KindNotFound:
		return http.StatusNotFound
	case utils.KindNotReady:
		return http.StatusConflict
	case utils.KindCapacityExceeded:
		return http.StatusTooManyRequests
	case utils.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
