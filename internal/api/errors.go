package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/study01/study-app-server/internal/database"
	"github.com/study01/study-app-server/internal/middleware"
)

// Stable error codes returned to clients.
const (
	CodeInvalidIPAddress = "ERROR.AUTH.INVALID_IPADDRESS"
	CodeDatabase         = "ERROR.DATABASE.UNAVAILABLE"
	CodeTimeout          = "ERROR.REQUEST.TIMEOUT"
	CodeInternal         = middleware.CodeInternal
)

// ErrInvalidIPAddress is returned when a deployed service receives a request
// without a forwarded client address.
var ErrInvalidIPAddress = errors.New("client ip address missing")

// errorResponse maps an error to an HTTP status and stable code.
func errorResponse(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidIPAddress):
		return http.StatusBadRequest, CodeInvalidIPAddress
	case errors.Is(err, database.ErrConnection):
		return http.StatusServiceUnavailable, CodeDatabase
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}
