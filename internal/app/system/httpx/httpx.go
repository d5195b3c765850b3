// Package httpx writes JSON responses and maps domain errors to HTTP
// status codes for the feature handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dalemusser/juntos/internal/app/system/apperr"
	"go.uber.org/zap"
)

// maxBody caps request bodies read by Decode.
const maxBody = 1 << 20

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Decode reads a JSON request body into v. An empty body leaves v as is.
func Decode(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("Invalid request body.")
	}
	return nil
}

// StatusFor maps a domain error code to an HTTP status.
func StatusFor(err error) int {
	switch apperr.CodeOf(err) {
	case apperr.CodeNotFound, apperr.CodeCommunityNotFound:
		return http.StatusNotFound
	case apperr.CodeNotMember:
		return http.StatusForbidden
	case apperr.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperr.CodeDuplicateName:
		return http.StatusConflict
	case apperr.CodeValidationFailed:
		return http.StatusBadRequest
	case apperr.CodeRemoteOperationFailed, apperr.CodeSwitchFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error writes err as an ErrorBody. Only the user-presentable message is
// sent; server errors are logged with their cause.
func Error(w http.ResponseWriter, log *zap.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && log != nil {
		log.Error("request failed", zap.Int("status", status), zap.Error(errors.Unwrap(err)))
	}
	JSON(w, status, ErrorBody{Error: apperr.Message(err), Code: string(apperr.CodeOf(err))})
}
