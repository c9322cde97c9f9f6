package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/newsdesk/internal/model"
)

func TestWriteErrorResponse_WritesAllFields(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusConflict, model.NewConflictError("email"))

	resp := w.Result()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", cc)
	}

	var raw map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	for _, field := range []string{"code", "message", "category", "action"} {
		if raw[field] == "" {
			t.Errorf("field %q is empty", field)
		}
	}
	if raw["code"] != model.ErrCodeConflict {
		t.Errorf("code = %q, want %q", raw["code"], model.ErrCodeConflict)
	}
}

func TestWriteInternalServerError_HidesDetails(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeInternal || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
}

func TestIsAPIRequest(t *testing.T) {
	tests := map[string]bool{
		"/api":              true,
		"/api/articles":     true,
		"/api//auth/me":     true,
		"/apiary":           false,
		"/admin/users":      false,
		"/articles/api/foo": false,
	}
	for p, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "http://example.com"+p, nil)
		if got := isAPIRequest(r); got != want {
			t.Errorf("isAPIRequest(%q) = %v, want %v", p, got, want)
		}
	}
}
