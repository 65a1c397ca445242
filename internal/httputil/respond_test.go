package httputil

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/rafflehub/rewards/internal/errors"
)

func TestWriteErrorClassifiesServiceErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, apperrors.NotFound("token not found"))

	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Code != string(apperrors.CodeNotFound) {
		t.Fatalf("expected code %s, got %s", apperrors.CodeNotFound, body.Code)
	}
}

func TestWriteErrorHidesUnknownErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("pq: connection refused"))

	if rec.Code != 500 {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "pq:") {
		t.Fatal("internal error detail leaked to client")
	}
}

func TestDecodeJSONRejectsOversizedBody(t *testing.T) {
	padding := strings.Repeat("a", maxBodyBytes)
	req := httptest.NewRequest("POST", "/users", strings.NewReader(`{"id":"`+padding+`"}`))
	rec := httptest.NewRecorder()

	var dst struct {
		ID string `json:"id"`
	}
	if err := DecodeJSON(rec, req, &dst); err == nil {
		t.Fatal("expected error for oversized body")
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/users", strings.NewReader(`{"id":"u1","typo":true}`))
	rec := httptest.NewRecorder()

	var dst struct {
		ID string `json:"id"`
	}
	if err := DecodeJSON(rec, req, &dst); err == nil {
		t.Fatal("expected error for unknown field")
	}

	req = httptest.NewRequest("POST", "/users", strings.NewReader(`{"id":"u1"}`))
	if err := DecodeJSON(rec, req, &dst); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dst.ID != "u1" {
		t.Fatalf("unexpected id: %q", dst.ID)
	}
}
