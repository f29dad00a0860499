package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sentrastack/sentra-diag/internal/models"
	"github.com/sentrastack/sentra-diag/internal/utils"
)

type fakeService struct {
	analyzeID  string
	analyzeErr error
	lastReq    models.AnalyzeRequest
	status     models.StatusResponse
	statusErr  error
	report     *models.AnalysisReport
	resultErr  error
	cleanupErr error
}

func (s *fakeService) Analyze(req models.AnalyzeRequest) (string, error) {
	s.lastReq = req
	return s.analyzeID, s.analyzeErr
}

func (s *fakeService) Status(id string) (models.StatusResponse, error) {
	return s.status, s.statusErr
}

func (s *fakeService) Result(id string) (*models.AnalysisReport, error) {
	return s.report, s.resultErr
}

func (s *fakeService) Cleanup(id string) error {
	return s.cleanupErr
}

func serve(t *testing.T, service Service, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	recorder := httptest.NewRecorder()
	NewHandler(nil, service, 0).Router().ServeHTTP(recorder, req)
	return recorder
}

func TestAnalyzeAcceptsJSONBody(t *testing.T) {
	service := &fakeService{analyzeID: "session-1"}
	body := `{"analysis_type":"agent-log","files":[{"name":"agent.log","data":"aGVsbG8="}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp := serve(t, service, req)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["session_id"] != "session-1" {
		t.Fatalf("unexpected payload %v", payload)
	}
	if service.lastReq.AnalysisType != "agent-log" || len(service.lastReq.Files) != 1 {
		t.Fatalf("unexpected decoded request %+v", service.lastReq)
	}
	if string(service.lastReq.Files[0].Data) != "hello" {
		t.Fatalf("expected base64 file payload decoded, got %q", service.lastReq.Files[0].Data)
	}
}

func TestAnalyzeAcceptsMultipartUpload(t *testing.T) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	writer.WriteField("analysis_type", "agent-log")
	part, err := writer.CreateFormFile("files", "agent.log")
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write([]byte("2024-03-01 10:00:05 [updater] INFO ok\n"))
	writer.Close()

	service := &fakeService{analyzeID: "session-2"}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp := serve(t, service, req)
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	if service.lastReq.AnalysisType != "agent-log" {
		t.Fatalf("expected form analysis_type decoded, got %q", service.lastReq.AnalysisType)
	}
	if len(service.lastReq.Files) != 1 || service.lastReq.Files[0].Name != "agent.log" {
		t.Fatalf("unexpected files %+v", service.lastReq.Files)
	}
}

func TestAnalyzeBadJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader("{nope"))
	req.Header.Set("Content-Type", "application/json")

	resp := serve(t, &fakeService{}, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestErrorKindStatusMapping(t *testing.T) {
	cases := []struct {
		kind utils.Kind
		want int
	}{
		{utils.KindInvalidArgument, http.StatusBadRequest},
		{utils.KindUnsupportedFormat, http.StatusBadRequest},
		{utils.KindMalformedInput, http.StatusBadRequest},
		{utils.KindNotFound, http.StatusNotFound},
		{utils.KindNotReady, http.StatusConflict},
		{utils.KindCapacityExceeded, http.StatusTooManyRequests},
		{utils.KindUnavailable, http.StatusServiceUnavailable},
		{utils.KindInternal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		service := &fakeService{analyzeErr: utils.NewAppError("test", tc.kind, "boom", nil)}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader(`{"analysis_type":"agent-log"}`))
		req.Header.Set("Content-Type", "application/json")

		resp := serve(t, service, req)
		if resp.Code != tc.want {
			t.Fatalf("kind %s: expected %d, got %d", tc.kind, tc.want, resp.Code)
		}

		var payload map[string]string
		if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode error payload: %v", err)
		}
		if payload["kind"] != string(tc.kind) || payload["error"] != "boom" {
			t.Fatalf("unexpected error payload %v", payload)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	service := &fakeService{status: models.StatusResponse{
		SessionID: "session-1",
		Status:    models.StatusRunning,
		Stage:     models.StageEnhancing,
		Percent:   50,
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/session-1/status", nil)

	resp := serve(t, service, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var status models.StatusResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if status.Stage != models.StageEnhancing || status.Percent != 50 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestResultEndpointNotReady(t *testing.T) {
	service := &fakeService{resultErr: utils.NewAppError("session.Result", utils.KindNotReady, "session is running", nil)}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/session-1/result", nil)

	resp := serve(t, service, req)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}
}

func TestResultEndpointReturnsReport(t *testing.T) {
	service := &fakeService{report: &models.AnalysisReport{
		Summary:          "1 finding(s)",
		DegradationLevel: models.DegradationNoLLM,
		ConfidenceScore:  0.7,
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/session-1/result", nil)

	resp := serve(t, service, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var report models.AnalysisReport
	if err := json.Unmarshal(resp.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.DegradationLevel != models.DegradationNoLLM {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestCleanupEndpoint(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/session-1/cleanup", nil)
	resp := serve(t, &fakeService{}, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestHealthz(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp := serve(t, &fakeService{}, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}
