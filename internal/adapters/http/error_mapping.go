package httpadapter

import (
	"net/http"

	"github.com/kirillkom/docvault/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrFileNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
