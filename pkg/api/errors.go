package api

import (
	"encoding/json"
	"net/http"

	"github.com/neurorail/core/pkg/fault"
)

// errorBody is the structured error response. Programmatic callers branch
// on code and retriable, never on message text.
type errorBody struct {
	Code      string         `json:"code"`
	Category  string         `json:"category"`
	Retriable bool           `json:"retriable"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

func statusForCode(code string) int {
	switch code {
	case fault.CodeNotFound:
		return http.StatusNotFound
	case fault.CodeConflict:
		return http.StatusConflict
	case fault.CodeInvalidTransition:
		return http.StatusUnprocessableEntity
	case fault.CodeInvalidInput:
		return http.StatusBadRequest
	case fault.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case fault.CodePolicyCooldown:
		return http.StatusForbidden
	case fault.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// writeFault renders err as the structured error body. Foreign errors are
// wrapped as internal so no storage-layer detail leaks to callers.
func writeFault(w http.ResponseWriter, err error) {
	fe := fault.FromError(err)
	body := errorBody{
		Code:      fe.Code,
		Category:  string(fe.Category),
		Retriable: fe.Retriable,
		Message:   fe.Message,
		Details:   fe.Details,
		RequestID: w.Header().Get("X-Request-ID"),
	}
	writeJSON(w, statusForCode(fe.Code), body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// maxBodyBytes caps request bodies; every payload in this API is small.
const maxBodyBytes = 1 << 20

// decodeJSON parses the request body into dest, rejecting unknown fields.
func decodeJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return fault.InvalidInput("malformed request body: %v", err)
	}
	return nil
}
