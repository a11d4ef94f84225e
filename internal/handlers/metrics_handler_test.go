package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ThomasJButler/ModelViz-sub002/internal/metrics"
	"github.com/ThomasJButler/ModelViz-sub002/internal/storage"
)

func newTestRouter(t *testing.T) (*gin.Engine, *metrics.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	backend, err := storage.NewFileBackend(filepath.Join(dir, "data"), 0)
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}
	store := metrics.NewSQLiteStore(filepath.Join(dir, "metrics.db"))
	t.Cleanup(func() { _ = store.Close() })

	service := metrics.NewService(metrics.NewCoordinator(metrics.NewWindowStore(backend), store, 90))
	t.Cleanup(service.Close)

	router := gin.New()
	api := router.Group("/api")
	{
		api.POST("/metrics", RecordMetric(service))
		api.GET("/metrics/recent", GetRecentMetrics(service))
		api.GET("/metrics/aggregated", GetAggregatedMetrics(service))
		api.GET("/metrics/export", ExportMetrics(service))
		api.GET("/metrics/provider/:provider", GetProviderMetrics(service))
		api.GET("/metrics/count", GetMetricsCount(service))
		api.POST("/metrics/cleanup", CleanupMetrics(service))
		api.DELETE("/metrics", ClearMetrics(service))
	}
	return router, service
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRecordMetricEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, "POST", "/api/metrics", map[string]any{
		"provider":  "OpenAI",
		"model":     "gpt-4",
		"status":    "success",
		"latencyMs": 120.5,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var record metrics.CallRecord
	if err := json.Unmarshal(w.Body.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if record.ID == "" {
		t.Error("response record has no id")
	}
	if record.Provider != "OpenAI" || record.LatencyMs != 120.5 {
		t.Errorf("response record = %+v", record)
	}
}

func TestRecordMetricEndpointRejectsInvalid(t *testing.T) {
	router, _ := newTestRouter(t)

	// missing provider
	w := doJSON(t, router, "POST", "/api/metrics", map[string]any{"model": "gpt-4"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	// malformed body
	req := httptest.NewRequest("POST", "/api/metrics", bytes.NewReader([]byte("{broken")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed body", rec.Code)
	}
}

func TestGetRecentMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	for i := 0; i < 3; i++ {
		w := doJSON(t, router, "POST", "/api/metrics", map[string]any{
			"provider": "OpenAI", "model": "gpt-4", "status": "success",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("seed record failed: %s", w.Body.String())
		}
	}

	w := doJSON(t, router, "GET", "/api/metrics/recent?limit=2", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Metrics []metrics.CallRecord `json:"metrics"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Metrics) != 2 {
		t.Errorf("len(metrics) = %d, want 2", len(resp.Metrics))
	}

	// invalid limit
	w = doJSON(t, router, "GET", "/api/metrics/recent?limit=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for bad limit", w.Code)
	}
}

func TestGetAggregatedMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	seeds := []map[string]any{
		{"provider": "OpenAI", "model": "gpt-4", "status": "success", "latencyMs": 100},
		{"provider": "OpenAI", "model": "gpt-4", "status": "success", "latencyMs": 120},
		{"provider": "OpenAI", "model": "gpt-4", "status": "error", "errorMessage": "timeout"},
		{"provider": "OpenAI", "model": "gpt-4", "status": "error", "errorMessage": "bad gateway"},
	}
	for _, s := range seeds {
		if w := doJSON(t, router, "POST", "/api/metrics", s); w.Code != http.StatusOK {
			t.Fatalf("seed record failed: %s", w.Body.String())
		}
	}

	w := doJSON(t, router, "GET", "/api/metrics/aggregated?range=today", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var report metrics.AggregatedReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.TotalCalls != 4 || report.SuccessfulCalls != 2 || report.SuccessRate != 0.5 {
		t.Errorf("report = totalCalls %d, successfulCalls %d, successRate %v",
			report.TotalCalls, report.SuccessfulCalls, report.SuccessRate)
	}
	if report.ByProvider["OpenAI"].TotalCalls != 4 {
		t.Errorf("byProvider[OpenAI].totalCalls = %d, want 4", report.ByProvider["OpenAI"].TotalCalls)
	}
}

func TestGetAggregatedMetricsEndpointExplicitBounds(t *testing.T) {
	router, _ := newTestRouter(t)

	if w := doJSON(t, router, "POST", "/api/metrics", map[string]any{
		"provider": "OpenAI", "model": "gpt-4", "status": "success",
	}); w.Code != http.StatusOK {
		t.Fatalf("seed record failed: %s", w.Body.String())
	}

	w := doJSON(t, router, "GET", "/api/metrics/aggregated?start=0&end=99999999999999", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var report metrics.AggregatedReport
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.TotalCalls != 1 {
		t.Errorf("totalCalls = %d, want 1", report.TotalCalls)
	}

	// start > end
	w = doJSON(t, router, "GET", "/api/metrics/aggregated?start=100&end=50", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for inverted bounds", w.Code)
	}

	// unknown symbolic range
	w = doJSON(t, router, "GET", "/api/metrics/aggregated?range=quarter", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unknown range", w.Code)
	}
}

func TestGetProviderMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	seeds := []map[string]any{
		{"provider": "OpenAI", "model": "gpt-4", "status": "success"},
		{"provider": "OpenAI", "model": "gpt-4", "status": "success"},
		{"provider": "Anthropic", "model": "claude-3", "status": "success"},
	}
	for _, s := range seeds {
		if w := doJSON(t, router, "POST", "/api/metrics", s); w.Code != http.StatusOK {
			t.Fatalf("seed record failed: %s", w.Body.String())
		}
	}

	w := doJSON(t, router, "GET", "/api/metrics/provider/OpenAI", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Provider string               `json:"provider"`
		Metrics  []metrics.CallRecord `json:"metrics"`
		Count    int                  `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Provider != "OpenAI" || resp.Count != 2 {
		t.Errorf("provider = %s, count = %d, want OpenAI/2", resp.Provider, resp.Count)
	}
	for _, r := range resp.Metrics {
		if r.Provider != "OpenAI" {
			t.Errorf("record provider = %s, want OpenAI", r.Provider)
		}
	}

	// unknown provider yields an empty list, not an error
	w = doJSON(t, router, "GET", "/api/metrics/provider/Nobody", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/metrics/provider/OpenAI?limit=0", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for bad limit", w.Code)
	}
}

func TestExportAndCountEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	for i := 0; i < 2; i++ {
		if w := doJSON(t, router, "POST", "/api/metrics", map[string]any{
			"provider": "OpenAI", "model": "gpt-4", "status": "success",
		}); w.Code != http.StatusOK {
			t.Fatalf("seed record failed: %s", w.Body.String())
		}
	}

	w := doJSON(t, router, "GET", "/api/metrics/export", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var exportResp struct {
		Metrics []metrics.CallRecord `json:"metrics"`
		Count   int                  `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &exportResp); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if exportResp.Count != 2 || len(exportResp.Metrics) != 2 {
		t.Errorf("export count = %d, len = %d, want 2/2", exportResp.Count, len(exportResp.Metrics))
	}

	w = doJSON(t, router, "GET", "/api/metrics/count", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var countResp struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &countResp); err != nil {
		t.Fatalf("unmarshal count: %v", err)
	}
	if countResp.Count != 2 {
		t.Errorf("count = %d, want 2", countResp.Count)
	}
}

func TestCleanupAndClearEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	if w := doJSON(t, router, "POST", "/api/metrics", map[string]any{
		"provider": "OpenAI", "model": "gpt-4", "status": "success",
	}); w.Code != http.StatusOK {
		t.Fatalf("seed record failed: %s", w.Body.String())
	}

	// fresh records are within retention, cleanup deletes nothing
	w := doJSON(t, router, "POST", "/api/metrics/cleanup", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var cleanupResp struct {
		Success bool  `json:"success"`
		Deleted int64 `json:"deleted"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &cleanupResp); err != nil {
		t.Fatalf("unmarshal cleanup: %v", err)
	}
	if !cleanupResp.Success || cleanupResp.Deleted != 0 {
		t.Errorf("cleanup = %+v, want success with 0 deleted", cleanupResp)
	}

	w = doJSON(t, router, "DELETE", "/api/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, "GET", "/api/metrics/count", nil)
	var countResp struct {
		Count int64 `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &countResp); err != nil {
		t.Fatalf("unmarshal count: %v", err)
	}
	if countResp.Count != 0 {
		t.Errorf("count after clear = %d, want 0", countResp.Count)
	}
}
