package api

import (
	"errors"
	"net/http"

	"yoyaku/internal/domain"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	codeValidation         = "validation_error"
	codeConflict           = "conflict"
	codeUnauthenticated    = "unauthenticated"
	codeInvalidCredentials = "invalid_credentials"
	codeForbidden          = "forbidden"
	codeNotFound           = "not_found"
	codeItemNotFound       = "item_not_found"
	codeNameTaken          = "name_taken"
	codeEmailTaken         = "email_taken"
	codeTooManyAttempts    = "too_many_attempts"
	codeRateLimited        = "rate_limited"
	codeInvalidJSON        = "invalid_json"
	codeInternal           = "internal_error"
	codeUnavailable        = "unavailable"
)

type errorMapping struct {
	status  int
	code    string
	message string
}

// mapError translates service errors into an HTTP status and error code.
// Store failures get a generic message.
func mapError(err error) errorMapping {
	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		return errorMapping{http.StatusBadRequest, codeValidation, err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return errorMapping{http.StatusConflict, codeConflict, err.Error()}
	case errors.Is(err, domain.ErrNameTaken):
		return errorMapping{http.StatusConflict, codeNameTaken, err.Error()}
	case errors.Is(err, domain.ErrEmailTaken):
		return errorMapping{http.StatusConflict, codeEmailTaken, err.Error()}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return errorMapping{http.StatusUnauthorized, codeInvalidCredentials, err.Error()}
	case errors.Is(err, domain.ErrUnauthenticated):
		return errorMapping{http.StatusUnauthorized, codeUnauthenticated, err.Error()}
	case errors.Is(err, domain.ErrForbidden):
		return errorMapping{http.StatusForbidden, codeForbidden, err.Error()}
	case errors.Is(err, domain.ErrItemNotFound):
		return errorMapping{http.StatusNotFound, codeItemNotFound, err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return errorMapping{http.StatusNotFound, codeNotFound, err.Error()}
	case errors.Is(err, domain.ErrTooManyAttempts):
		return errorMapping{http.StatusTooManyRequests, codeTooManyAttempts, err.Error()}
	default:
		return errorMapping{http.StatusInternalServerError, codeInternal, "internal error"}
	}
}

func grpcError(err error) error {
	m := mapError(err)
	var c codes.Code
	switch m.status {
	case http.StatusBadRequest:
		c = codes.InvalidArgument
	case http.StatusConflict:
		c = codes.AlreadyExists
	case http.StatusNotFound:
		c = codes.NotFound
	case http.StatusUnauthorized:
		c = codes.Unauthenticated
	case http.StatusForbidden:
		c = codes.PermissionDenied
	case http.StatusTooManyRequests:
		c = codes.ResourceExhausted
	default:
		c = codes.Internal
	}
	return status.Error(c, m.message)
}
