package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/CodeWithZezo/mega-project/internal/auth"
	"github.com/CodeWithZezo/mega-project/internal/org"
)

// Error represents a structured error response.
type Error struct {
	Status  int      `json:"status"`
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeForbidden    = "forbidden"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps service-layer sentinel errors onto HTTP responses.
// Unrecognized errors become 500s with a generic message so internal detail
// never leaks to clients.
func writeDomainError(w http.ResponseWriter, err error) { //nolint:gocyclo // flat sentinel-to-status mapping
	var policyErr *auth.PolicyError
	if errors.As(err, &policyErr) {
		writeJSON(w, http.StatusBadRequest, Error{
			Status:  http.StatusBadRequest,
			Code:    ErrCodeValidation,
			Message: "password does not meet the policy",
			Details: policyErr.Violations,
		})
		return
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrSessionInvalid):
		writeUnauthorized(w, err.Error())
	case errors.Is(err, org.ErrForbidden):
		writeError(w, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, org.ErrOrgNotFound),
		errors.Is(err, org.ErrMemberNotFound),
		errors.Is(err, org.ErrKeyNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, auth.ErrEmailExists),
		errors.Is(err, org.ErrNameExists),
		errors.Is(err, org.ErrAlreadyMember):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, org.ErrInvalidName),
		errors.Is(err, org.ErrInvalidRole),
		errors.Is(err, org.ErrLastAdmin):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	default:
		writeInternalError(w, "internal server error")
	}
}
