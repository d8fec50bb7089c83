package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/avolkov/fakelens/internal/config"
	"github.com/avolkov/fakelens/internal/core/domain"
	"github.com/avolkov/fakelens/internal/core/ports"
	"github.com/avolkov/fakelens/internal/observability/metrics"
)

const backpressureWait = 100 * time.Millisecond

type Router struct {
	cfg         config.Config
	submitter   ports.AnalysisSubmitter
	reader      ports.AnalysisReader
	calibration ports.CalibrationService
	backend     ports.DetectionBackend
	formats     ports.FormatSource
	metrics     *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	submitter ports.AnalysisSubmitter,
	reader ports.AnalysisReader,
	calibration ports.CalibrationService,
	backend ports.DetectionBackend,
	formats ports.FormatSource,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:         cfg,
		submitter:   submitter,
		reader:      reader,
		calibration: calibration,
		backend:     backend,
		formats:     formats,
		metrics:     m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/backend/health", rt.backendHealth)
	mux.HandleFunc("/v1/formats", rt.supportedFormats)
	mux.HandleFunc("/v1/analyses", rt.analyses)
	mux.HandleFunc("/v1/analyses/", rt.analysisByID)
	mux.HandleFunc("/v1/calibration", rt.calibrationHandler)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) backendHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	health, err := rt.backend.CheckHealth(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (rt *Router) supportedFormats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	formats, err := rt.formats.SupportedFormats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, formats)
}

func (rt *Router) analyses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rt.submitAnalysis(w, r)
	case http.MethodGet:
		rt.listAnalyses(w, r)
	default:
		writeMethodNotAllowed(w)
	}
}

func (rt *Router) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	analysis, err := rt.submitter.Submit(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		fileHeader.Size,
		file,
	)
	if err != nil {
		if rt.metrics != nil {
			rt.metrics.RecordSubmission("api", false, 0)
		}
		writeError(w, err)
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordSubmission("api", true, analysis.SizeBytes)
	}
	writeJSON(w, http.StatusAccepted, analysis)
}

func (rt *Router) listAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be an integer"})
			return
		}
		limit = parsed
	}

	list, err := rt.reader.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []domain.Analysis{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"analyses": list})
}

func (rt *Router) analysisByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/analyses/")
	if rest == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "analysis id is required"})
		return
	}

	if id, ok := strings.CutSuffix(rest, "/verdict"); ok {
		rt.analysisVerdict(w, r, id)
		return
	}
	if strings.Contains(rest, "/") {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown resource"})
		return
	}

	analysis, err := rt.reader.GetByID(r.Context(), rest)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// analysisVerdict reinterprets a stored raw score under the current
// calibration, optionally overridden per request via query parameters. The
// stored detection result is left untouched.
func (rt *Router) analysisVerdict(w http.ResponseWriter, r *http.Request, id string) {
	analysis, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if analysis.Result == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "analysis has no result yet"})
		return
	}
	score, ok := analysis.Result.RawScore()
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "result carries no reinterpretable score"})
		return
	}

	patch, err := calibrationPatchFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	cfg := rt.calibration.Current(r.Context()).Apply(patch).Normalized()
	verdict := domain.Interpret(score, cfg)
	if rt.metrics != nil {
		rt.metrics.RecordVerdict("api", string(verdict.Result))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analysis_id": analysis.ID,
		"verdict":     verdict,
		"calibration": cfg,
	})
}

func (rt *Router) calibrationHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, rt.calibration.Current(r.Context()))
	case http.MethodPut:
		var patch domain.CalibrationPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		writeJSON(w, http.StatusOK, rt.calibration.Update(r.Context(), patch))
	case http.MethodDelete:
		writeJSON(w, http.StatusOK, rt.calibration.Reset(r.Context()))
	default:
		writeMethodNotAllowed(w)
	}
}

func calibrationPatchFromQuery(r *http.Request) (domain.CalibrationPatch, error) {
	var patch domain.CalibrationPatch
	query := r.URL.Query()

	if raw := query.Get("threshold"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return patch, errInvalidQueryParam("threshold")
		}
		patch.Threshold = &v
	}
	if raw := query.Get("uncertainty_range"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return patch, errInvalidQueryParam("uncertainty_range")
		}
		patch.UncertaintyRange = &v
	}
	if raw := query.Get("flip_output_interpretation"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return patch, errInvalidQueryParam("flip_output_interpretation")
		}
		patch.FlipOutputInterpretation = &v
	}
	return patch, nil
}

type queryParamError string

func errInvalidQueryParam(name string) error {
	return queryParamError("query parameter " + name + " is invalid")
}

func (e queryParamError) Error() string { return string(e) }

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	report := domain.ReportFrom(err)
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now().UTC()
	}
	writeJSON(w, mapErrorToHTTPStatus(err), report)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}
