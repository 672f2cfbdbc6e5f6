package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"pseudo.chat/vouchd/internal/types"
)

func TestHandleHealth(t *testing.T) {
	svc, _ := setupTest(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	svc.HandleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
}

func TestHandleVersion(t *testing.T) {
	svc, _ := setupTest(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/version", nil)
	w := httptest.NewRecorder()
	svc.HandleVersion(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["version"] != types.Version {
		t.Errorf("Expected version %s, got %v", types.Version, body["version"])
	}
}
