package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/pkg/httputil"
)

// Error codes carried in the error envelope.
const (
	codeValidation   = "validation_error"
	codeInvalidState = "invalid_state"
	codeImmutable    = "immutable_field"
	codeNotFound     = "not_found"
	codeDuplicate    = "duplicate"
	codeUnavailable  = "upstream_unavailable"
	codeInternal     = "internal_error"
)

// respondServiceError maps an error kind to its HTTP status. 4xx messages
// describe the caller's mistake and are returned as-is; 5xx messages are
// replaced with a safe public text and the real error is only logged.
func respondServiceError(w http.ResponseWriter, err error) {
	var (
		verr   *domain.ValidationError
		serr   *domain.InvalidStateError
		ferr   *domain.ImmutableFieldError
		status int
		code   string
	)
	details := map[string]any{}

	switch {
	case errors.As(err, &verr):
		status, code = http.StatusBadRequest, codeValidation
		details["field"] = verr.Field
	case errors.As(err, &serr):
		status, code = http.StatusBadRequest, codeInvalidState
		details["status"] = string(serr.Status)
	case errors.As(err, &ferr):
		status, code = http.StatusBadRequest, codeImmutable
		details["field"] = ferr.Field
		details["status"] = string(ferr.Status)
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, codeValidation
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, codeNotFound
	case errors.Is(err, domain.ErrDuplicate):
		status, code = http.StatusConflict, codeDuplicate
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		log.Error("upstream unavailable", "error", err)
		httputil.ErrorCode(w, http.StatusServiceUnavailable, codeUnavailable, "Service temporarily unavailable", nil)
		return
	default:
		log.Error("unhandled error", "error", err)
		httputil.ErrorCode(w, http.StatusInternalServerError, codeInternal, safeErrorMessage(err), nil)
		return
	}

	if len(details) == 0 {
		details = nil
	}
	httputil.ErrorCode(w, status, code, err.Error(), details)
}

// safeErrorMessage maps common internal error patterns to public-safe
// messages for 5xx responses.
func safeErrorMessage(internalErr error) string {
	if internalErr == nil {
		return "An internal error occurred"
	}

	errStr := strings.ToLower(internalErr.Error())

	switch {
	case strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "dial tcp"):
		return "Service temporarily unavailable"

	case strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "context canceled"):
		return "Request timed out"

	case strings.Contains(errStr, "sql") ||
		strings.Contains(errStr, "pq:") ||
		strings.Contains(errStr, "query") ||
		strings.Contains(errStr, "scan") ||
		strings.Contains(errStr, "database"):
		return "A database error occurred"

	default:
		return "An internal error occurred"
	}
}
