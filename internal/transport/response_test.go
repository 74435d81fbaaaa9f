package transport

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/procesio/procesio/model"
)

func TestWriteError_statusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", model.NewNotFoundError("missing"), http.StatusNotFound},
		{"bad request", model.NewBadRequestError("nope"), http.StatusBadRequest},
		{"unauthorized", model.NewUnauthorizedError("who"), http.StatusUnauthorized},
		{"forbidden", model.NewForbiddenError("not yours"), http.StatusForbidden},
		{"conflict", model.NewConflictError("stale"), http.StatusConflict},
		{"invalid state", model.NewInvalidStateError("terminal"), http.StatusConflict},
		{"validation", model.NewValidationError(nil), http.StatusUnprocessableEntity},
		{"storage", model.NewStorageError("insert", errors.New("down")), http.StatusBadGateway},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}

			var body struct {
				Error *model.ErrorEnvelope `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Error == nil || body.Error.Code == "" {
				t.Errorf("error envelope missing: %s", rec.Body.String())
			}
		})
	}
}

func TestWriteError_hidesNonEnvelopeDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("pq: connection refused at 10.0.0.3"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got == "" || strings.Contains(got, "10.0.0.3") {
		t.Errorf("internal details leaked: %s", got)
	}
}

func TestWriteJSON_setsHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"id": "x"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}
