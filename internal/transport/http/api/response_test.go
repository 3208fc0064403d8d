package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFailWithDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	FailWithDetails(rec, http.StatusBadRequest, "validation_error", "payload validation failed", map[string]any{"fields": []string{"fromDate"}}, "req-1")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var env Envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Success || env.Error == nil || env.Error.Code != "validation_error" || env.RequestID != "req-1" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Error.Details == nil {
		t.Fatal("expected details")
	}
}

func TestDownload(t *testing.T) {
	rec := httptest.NewRecorder()
	Download(rec, "text/csv", "SIF_1_QNB_20240205_0907.csv", []byte("a,b\r\n"))

	if got := rec.Header().Get("Content-Disposition"); got != "attachment; filename=SIF_1_QNB_20240205_0907.csv" {
		t.Fatalf("unexpected disposition %q", got)
	}
	if rec.Body.String() != "a,b\r\n" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}
