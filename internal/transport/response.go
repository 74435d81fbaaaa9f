// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the administrative API.
package transport

import (
	"encoding/json"
	"net/http"

	"github.com/procesio/procesio/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:    http.StatusBadRequest,
	model.ErrUnauthorized:  http.StatusUnauthorized,
	model.ErrForbidden:     http.StatusForbidden,
	model.ErrNotFound:      http.StatusNotFound,
	model.ErrConflict:      http.StatusConflict,
	model.ErrValidation:    http.StatusUnprocessableEntity,
	model.ErrInvalidState:  http.StatusConflict,
	model.ErrStorage:       http.StatusBadGateway,
	model.ErrInternalError: http.StatusInternalServerError,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes an ErrorEnvelope as a JSON response with the correct
// HTTP status code. If err is not an *ErrorEnvelope, a generic 500 is
// returned.
func WriteError(w http.ResponseWriter, err error) {
	ee, ok := err.(*model.ErrorEnvelope)
	if !ok {
		ee = model.NewInternalError()
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewBadRequestError(msg))
}

// listResponse is the envelope for collection endpoints.
type listResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	WriteJSON(w, http.StatusOK, listResponse[T]{Items: items, Count: len(items)})
}

// decodeBody decodes a JSON request body, rejecting unknown fields.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return model.NewBadRequestError("malformed JSON body: " + err.Error())
	}
	return nil
}
