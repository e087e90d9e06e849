// Package httpx provides HTTP response utilities.
package httpx

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/bookledger/internal/ledger/shared"
)

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind shared.Kind) int {
	switch kind {
	case shared.KindValidation:
		return http.StatusBadRequest
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindConflict, shared.KindIntegrity:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps ledger errors to RFC7807 responses. Unclassified errors are
// logged and rendered without detail.
func RespondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind, ok := shared.KindOf(err)
	if !ok {
		if logger != nil {
			logger.Error("unhandled request error",
				slog.String("path", r.URL.Path),
				slog.String("method", r.Method),
				slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "", "")
		return
	}
	status := StatusFor(kind)
	Problem(w, status, http.StatusText(status), string(kind), shared.MessageOf(err))
}

// Unauthorized writes a 401 problem.
func Unauthorized(w http.ResponseWriter, detail string) {
	Problem(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED", detail)
}

// Forbidden writes a 403 problem.
func Forbidden(w http.ResponseWriter, detail string) {
	Problem(w, http.StatusForbidden, "Forbidden", "FORBIDDEN", detail)
}
