package httpapi

import (
	"net/http"

	"github.com/mosaicdb/mosaicdb/internal/merrors"
)

// errorResponse is the JSON body written for any non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps a merrors.Kind to an HTTP status code, modeled on the
// teacher's internal/mcp.MapError switch over known error sentinels, but
// targeting HTTP status codes rather than JSON-RPC error codes.
func statusFor(err error) int {
	switch merrors.KindOf(err) {
	case merrors.InvalidInput, merrors.ClassifierBypass:
		return http.StatusBadRequest
	case merrors.NotFound:
		return http.StatusNotFound
	case merrors.Timeout:
		return http.StatusGatewayTimeout
	case merrors.Overloaded:
		return http.StatusTooManyRequests
	case merrors.AllShardsFailed, merrors.Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(err error) string {
	if kind := merrors.KindOf(err); kind != "" {
		return err.Error()
	}
	return "internal error"
}

func errKind(err error) merrors.Kind {
	return merrors.KindOf(err)
}
