package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError_AppError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("wrapped: %w", ErrRedirectNotAllowed.WithDetail("https://evil.com")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["code"] != "REDIRECT_NOT_ALLOWED" || body["detail"] != "https://evil.com" {
		t.Fatalf("unexpected body %v", body)
	}
	if ErrRedirectNotAllowed.Detail != "" {
		t.Fatalf("WithDetail must not mutate the catalog")
	}
}

func TestWriteError_Generic(t *testing.T) {
	rec := httptest.NewRecorder()
	cause := stderrors.New("db down")
	WriteError(rec, cause)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if !stderrors.Is(FromError(cause), cause) {
		t.Fatalf("cause must be preserved")
	}
}
