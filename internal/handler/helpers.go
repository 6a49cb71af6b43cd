package handler

import (
	"errors"
	"net/http"

	"ripple/internal/domain"
	"ripple/internal/httputil"
)

// handleError maps domain errors to HTTP responses.
func handleError(w http.ResponseWriter, err error) {
	var conflictErr *domain.ConflictError
	var streamErr *domain.StreamInProgressError
	var providerErr *domain.ProviderError

	switch {
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &streamErr):
		httputil.RespondErrorWithExtras(w, http.StatusConflict, streamErr.Error(), map[string]interface{}{
			"stream_id": streamErr.StreamID,
		})
	case errors.As(err, &conflictErr):
		if conflictErr.Existing != nil {
			httputil.RespondJSON(w, http.StatusConflict, conflictErr.Existing)
			return
		}
		httputil.RespondError(w, http.StatusConflict, conflictErr.Error())
	case errors.As(err, &providerErr):
		httputil.RespondError(w, http.StatusBadGateway, providerErr.Error())
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}
