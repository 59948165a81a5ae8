package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "stellarbridge/pkg/domain-errors"
)

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// StatusFor maps a domain error code to an HTTP status. Validation failures
// are client errors; unavailable infrastructure and unknown failures are
// server errors.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeSecurity:
		return http.StatusUnauthorized
	case dErrors.CodeInvalidConfiguration,
		dErrors.CodeAccountCreationFailed,
		dErrors.CodeInvalidAddress,
		dErrors.CodeFederationFailed,
		dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeInvalidJournalEntry,
		dErrors.CodeTrustLineAdjustmentFailed,
		dErrors.CodeInvalidInput,
		dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as {"error": code, "error_description": message}.
// Descriptions of internal errors are withheld.
func WriteError(w http.ResponseWriter, err error) {
	code, ok := dErrors.CodeOf(err)
	if !ok {
		code = dErrors.CodeInternal
	}
	status := StatusFor(code)
	resp := errorResponse{Error: string(code)}
	if status != http.StatusInternalServerError {
		resp.Description = dErrors.Message(err)
	}
	WriteJSON(w, status, resp)
}

// WriteJSON writes v as a JSON body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}
