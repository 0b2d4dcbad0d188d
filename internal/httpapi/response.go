// Package httpapi wires every HTTP endpoint onto the domain services: chi
// routing, request-scoped auth/tenant resolution, rate limiting, and a
// response envelope that matches the platform's flat error contract.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/mcare/mcare-backend/internal/correlation"
	"github.com/mcare/mcare-backend/pkg/errors"
	"github.com/mcare/mcare-backend/pkg/logger"
)

// errorBody is the structured error contract: {error, request_id, code}.
// It intentionally does not reuse pkg/httputil.Response, which nests the
// error under a success/data/error envelope this platform does not use.
type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Respond writes a successful JSON response.
func Respond(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, data)
}

// RespondError renders err as the platform's flat error body, deriving
// the request id from the correlation middleware and the status/code
// from the underlying AppError kind.
func RespondError(log *logger.Logger, w http.ResponseWriter, r *http.Request, err error) {
	requestID := correlation.FromContext(r.Context())

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		writeJSON(w, appErr.StatusCode, errorBody{
			Error:     appErr.Localize(r.Context()),
			RequestID: requestID,
			Code:      appErr.Code,
		})
		return
	}

	log.Error().Err(err).Str("request_id", requestID).Str("path", r.URL.Path).Msg("unhandled error")
	writeJSON(w, http.StatusInternalServerError, errorBody{
		Error:     "internal server error",
		RequestID: requestID,
		Code:      "internal",
	})
}

// decodeJSON decodes a JSON request body, surfacing malformed bodies as a
// validation AppError rather than a raw decode error.
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.Validation(map[string]string{"body": "request body is required"})
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Validation(map[string]string{"body": "malformed JSON: " + err.Error()})
	}
	return nil
}
