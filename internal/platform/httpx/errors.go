// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/finboard/finboard/internal/shared"
)

// Sentinel errors understood by RespondError. Domain packages wrap these or
// the shared sentinels they alias.
var (
	ErrNotFound  = shared.ErrNotFound
	ErrDuplicate = shared.ErrDuplicate
	ErrUpstream  = shared.ErrUpstream
)

// RespondError maps domain errors to HTTP responses using RFC7807. Unknown
// errors become a bare 500 so internals never leak into the body.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrUpstream):
		Problem(w, http.StatusBadGateway, "Upstream Unavailable", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
