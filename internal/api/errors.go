package api

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/crm/internal/identity"
	"github.com/wolfeidau/crm/internal/store"
	"github.com/wolfeidau/crm/internal/tenancy"
)

// Error codes returned in the error envelope.
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeNotFound           = "NOT_FOUND"
	CodeValidation         = "VALIDATION_ERROR"
	CodeConflict           = "CONFLICT"
	CodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	CodeProvisioningFailed = "PROVISIONING_FAILED"
	CodeInternal           = "INTERNAL_ERROR"
)

// Error is an error with a stable code and HTTP status, rendered as
// {"error":{"code","message","details"}}.
type Error struct {
	Code    string
	Message string
	Status  int
	Details any
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func newError(status int, code, message string) *Error {
	return &Error{Code: code, Message: message, Status: status}
}

func validationError(message string, details any) *Error {
	return &Error{Code: CodeValidation, Message: message, Status: http.StatusBadRequest, Details: details}
}

func notFound(what string) *Error {
	return newError(http.StatusNotFound, CodeNotFound, what+" not found")
}

var (
	errUnauthorized  = newError(http.StatusUnauthorized, CodeUnauthorized, "Not authenticated")
	errForbidden     = newError(http.StatusForbidden, CodeForbidden, "Not a member of any organization")
	errOrgMismatch   = newError(http.StatusForbidden, CodeForbidden, "Organization mismatch")
	errInternal      = newError(http.StatusInternalServerError, CodeInternal, "Internal server error")
	errProvisioning  = newError(http.StatusInternalServerError, CodeProvisioningFailed, "Failed to create organization")
	errInvalidBody   = validationError("Invalid request body", nil)
	errRequestTooBig = newError(http.StatusRequestEntityTooLarge, CodeValidation, "Request body too large")
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// toAPIError maps domain sentinel errors onto the HTTP taxonomy.
// ErrForbidden is checked before ErrProvisioningFailed since resolution failures wrap both.
func toAPIError(err error) *Error {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, identity.ErrUnauthenticated):
		return errUnauthorized
	case errors.Is(err, identity.ErrInvalidCredentials):
		return newError(http.StatusUnauthorized, CodeUnauthorized, "Invalid email or password")
	case errors.Is(err, identity.ErrEmailNotConfirmed):
		return newError(http.StatusUnauthorized, CodeUnauthorized, "Email not confirmed")
	case errors.Is(err, identity.ErrEmailTaken):
		return newError(http.StatusConflict, CodeConflict, "Email already registered")
	case errors.Is(err, tenancy.ErrForbidden):
		return errForbidden
	case errors.Is(err, tenancy.ErrProvisioningFailed):
		return errProvisioning
	case errors.Is(err, store.ErrNotFound):
		return notFound("Record")
	default:
		return errInternal
	}
}

// writeError renders err in the error envelope. Server errors are logged with their cause,
// which is never echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)

	if apiErr.Status >= http.StatusInternalServerError {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("code", apiErr.Code).Msg("Request failed")
	} else {
		zerolog.Ctx(r.Context()).Debug().Err(err).Str("code", apiErr.Code).Msg("Request rejected")
	}

	writeJSON(w, r, apiErr.Status, map[string]errorBody{
		"error": {Code: apiErr.Code, Message: apiErr.Message, Details: apiErr.Details},
	})
}
