package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/avolkov/fakelens/internal/config"
	"github.com/avolkov/fakelens/internal/core/domain"
	"github.com/avolkov/fakelens/internal/core/ports"
)

type submitterFake struct {
	analysis *domain.Analysis
	err      error

	gotFilename string
	gotSize     int64
}

func (f *submitterFake) Submit(_ context.Context, filename, _ string, size int64, _ io.Reader) (*domain.Analysis, error) {
	f.gotFilename = filename
	f.gotSize = size
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

type readerFake struct {
	analysis *domain.Analysis
	list     []domain.Analysis
	err      error
}

func (f *readerFake) GetByID(context.Context, string) (*domain.Analysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.analysis, nil
}

func (f *readerFake) List(context.Context, int) ([]domain.Analysis, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

type calibrationFake struct {
	current domain.CalibrationConfig
}

func (f *calibrationFake) Current(context.Context) domain.CalibrationConfig { return f.current }

func (f *calibrationFake) Update(_ context.Context, patch domain.CalibrationPatch) domain.CalibrationConfig {
	f.current = f.current.Apply(patch).Normalized()
	return f.current
}

func (f *calibrationFake) Reset(context.Context) domain.CalibrationConfig {
	f.current = domain.DefaultCalibration()
	return f.current
}

type backendFake struct {
	health    domain.HealthStatus
	healthErr error
}

func (f backendFake) CheckHealth(context.Context) (domain.HealthStatus, error) {
	if f.healthErr != nil {
		return domain.HealthStatus{}, f.healthErr
	}
	return f.health, nil
}

func (f backendFake) Info(context.Context) (domain.ServiceInfo, error) {
	return domain.ServiceInfo{}, nil
}

func (f backendFake) SupportedFormats(context.Context) (domain.SupportedFormats, error) {
	return domain.SupportedFormats{}, nil
}

func (f backendFake) Detect(context.Context, ports.DetectInput) (*domain.DetectionResponse, error) {
	return nil, errors.New("not implemented")
}

type formatsFake struct {
	formats domain.SupportedFormats
	err     error
}

func (f formatsFake) SupportedFormats(context.Context) (domain.SupportedFormats, error) {
	if f.err != nil {
		return domain.SupportedFormats{}, f.err
	}
	return f.formats, nil
}

func testConfig() config.Config {
	return config.Config{
		APIRateLimitRPS:   1000,
		APIRateLimitBurst: 1000,
		APIMaxInFlight:    16,
	}
}

type routerDeps struct {
	submitter   *submitterFake
	reader      *readerFake
	calibration *calibrationFake
	backend     backendFake
	formats     formatsFake
}

func newTestHandler(cfg config.Config, deps routerDeps) http.Handler {
	if deps.submitter == nil {
		deps.submitter = &submitterFake{}
	}
	if deps.reader == nil {
		deps.reader = &readerFake{}
	}
	if deps.calibration == nil {
		deps.calibration = &calibrationFake{current: domain.DefaultCalibration()}
	}
	return NewRouter(cfg, deps.submitter, deps.reader, deps.calibration, deps.backend, deps.formats, nil).Handler()
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestSubmitAnalysisReturns202(t *testing.T) {
	submitter := &submitterFake{analysis: &domain.Analysis{
		ID:        "a-1",
		Filename:  "clip.wav",
		SizeBytes: 7,
		Status:    domain.StatusQueued,
	}}
	handler := newTestHandler(testConfig(), routerDeps{submitter: submitter})

	body, contentType := multipartUpload(t, "clip.wav", "payload")
	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", res.Code, res.Body.String())
	}
	if submitter.gotFilename != "clip.wav" {
		t.Fatalf("submitted filename = %q", submitter.gotFilename)
	}

	var analysis domain.Analysis
	if err := json.NewDecoder(res.Body).Decode(&analysis); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if analysis.ID != "a-1" || analysis.Status != domain.StatusQueued {
		t.Fatalf("unexpected payload: %+v", analysis)
	}
}

func TestSubmitAnalysisWithoutFileFieldReturns400(t *testing.T) {
	handler := newTestHandler(testConfig(), routerDeps{})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", strings.NewReader("not multipart"))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestSubmitValidationFailureMapsTo400(t *testing.T) {
	submitter := &submitterFake{
		err: domain.WrapError(domain.ErrValidation, "validate upload", errors.New("unsupported format .xyz")),
	}
	handler := newTestHandler(testConfig(), routerDeps{submitter: submitter})

	body, contentType := multipartUpload(t, "file.xyz", "payload")
	req := httptest.NewRequest(http.MethodPost, "/v1/analyses", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}

	var payload map[string]any
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["error"] == "" {
		t.Fatalf("expected error field, got %v", payload)
	}
}

func TestGetAnalysisByIDReturns404ForMissing(t *testing.T) {
	reader := &readerFake{
		err: domain.WrapError(domain.ErrAnalysisNotFound, "get analysis", errors.New("id=missing")),
	}
	handler := newTestHandler(testConfig(), routerDeps{reader: reader})

	req := httptest.NewRequest(http.MethodGet, "/v1/analyses/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.Code)
	}
}

func TestBackendHealthMapsConnectivityTo503(t *testing.T) {
	backend := backendFake{
		healthErr: domain.WrapError(domain.ErrConnectivity, "health", &domain.ErrorReport{
			Message:   domain.MsgConnectivity,
			Timestamp: time.Now().UTC(),
		}),
	}
	handler := newTestHandler(testConfig(), routerDeps{backend: backend})

	req := httptest.NewRequest(http.MethodGet, "/v1/backend/health", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", res.Code)
	}

	var report domain.ErrorReport
	if err := json.NewDecoder(res.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Message != domain.MsgConnectivity {
		t.Fatalf("error = %q, want the fixed connectivity message", report.Message)
	}
}

func TestBackendTimeoutMapsTo504(t *testing.T) {
	backend := backendFake{
		healthErr: domain.WrapError(domain.ErrTimeout, "health", &domain.ErrorReport{
			Message:   domain.MsgTimeout,
			Timestamp: time.Now().UTC(),
		}),
	}
	handler := newTestHandler(testConfig(), routerDeps{backend: backend})

	req := httptest.NewRequest(http.MethodGet, "/v1/backend/health", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", res.Code)
	}
}

func TestVerdictEndpointRecomputesUnderQueryOverrides(t *testing.T) {
	reader := &readerFake{analysis: &domain.Analysis{
		ID:     "a-1",
		Status: domain.StatusSucceeded,
		Result: &domain.DetectionResponse{
			FileType:        domain.FileTypeAudio,
			DetectionResult: domain.ResultFake,
			ConfidenceScore: 0.8,
			Metadata:        domain.Metadata{Audio: &domain.AudioMetadata{SigmoidOutput: 0.8}},
		},
	}}
	handler := newTestHandler(testConfig(), routerDeps{reader: reader})

	req := httptest.NewRequest(http.MethodGet,
		"/v1/analyses/a-1/verdict?flip_output_interpretation=true&uncertainty_range=0", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", res.Code, res.Body.String())
	}

	var payload struct {
		AnalysisID string         `json:"analysis_id"`
		Verdict    domain.Verdict `json:"verdict"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Verdict.Result != domain.ResultReal {
		t.Fatalf("flipped verdict = %s, want real", payload.Verdict.Result)
	}
	if payload.Verdict.PFake != 0.2 {
		t.Fatalf("p_fake = %v, want 0.2", payload.Verdict.PFake)
	}
}

func TestVerdictEndpointRejectsResultlessAnalysis(t *testing.T) {
	reader := &readerFake{analysis: &domain.Analysis{ID: "a-1", Status: domain.StatusQueued}}
	handler := newTestHandler(testConfig(), routerDeps{reader: reader})

	req := httptest.NewRequest(http.MethodGet, "/v1/analyses/a-1/verdict", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", res.Code)
	}
}

func TestCalibrationEndpointRoundTrip(t *testing.T) {
	calibration := &calibrationFake{current: domain.DefaultCalibration()}
	handler := newTestHandler(testConfig(), routerDeps{calibration: calibration})

	payload, _ := json.Marshal(map[string]any{"threshold": 0.7})
	req := httptest.NewRequest(http.MethodPut, "/v1/calibration", bytes.NewReader(payload))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("PUT status = %d, want 200", res.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/calibration", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	var cfg domain.CalibrationConfig
	if err := json.NewDecoder(res.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Threshold != 0.7 {
		t.Fatalf("threshold = %v, want 0.7", cfg.Threshold)
	}
	if cfg.UncertaintyRange != domain.DefaultUncertaintyRange {
		t.Fatalf("untouched field changed: %v", cfg.UncertaintyRange)
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/calibration", nil)
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if err := json.NewDecoder(res.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg != domain.DefaultCalibration() {
		t.Fatalf("reset = %+v, want defaults", cfg)
	}
}

func TestListAnalysesReturnsEmptyArrayNotNull(t *testing.T) {
	handler := newTestHandler(testConfig(), routerDeps{})

	req := httptest.NewRequest(http.MethodGet, "/v1/analyses", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"analyses":[]`) {
		t.Fatalf("body %q must carry an empty array", res.Body.String())
	}
}

func TestRequestIDHeaderIsEchoed(t *testing.T) {
	handler := newTestHandler(testConfig(), routerDeps{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if got := res.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("request id header = %q, want req-42", got)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected a generated request id")
	}
}
