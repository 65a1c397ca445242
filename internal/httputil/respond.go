// Package httputil provides JSON request and response helpers shared by the
// HTTP handlers and middleware.
package httputil

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/rafflehub/rewards/internal/errors"
)

// ErrorBody is the wire shape of every error response.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteErrorResponse writes a structured error body.
func WriteErrorResponse(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	WriteJSON(w, status, ErrorBody{Code: code, Message: message, Details: details})
}

// WriteError maps err onto the error taxonomy and writes it. Unclassified
// errors become opaque 500s.
func WriteError(w http.ResponseWriter, err error) {
	if serviceErr := apperrors.GetServiceError(err); serviceErr != nil {
		WriteErrorResponse(w, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
		return
	}
	WriteErrorResponse(w, http.StatusInternalServerError, string(apperrors.CodeInternal), "internal error", nil)
}

// Unauthorized writes a 401 with an optional message.
func Unauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "unauthorized"
	}
	WriteErrorResponse(w, http.StatusUnauthorized, string(apperrors.CodeUnauthorized), message, nil)
}

// maxBodyBytes bounds request bodies; the API carries no large payloads.
const maxBodyBytes = 1 << 20

// DecodeJSON reads a bounded JSON request body into target. Unknown fields
// are rejected so client typos fail loudly instead of being dropped.
func DecodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
