package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"variantree/internal/config"
	"variantree/internal/domain"
	"variantree/internal/httputil"
)

// PathParam extracts a required path value, writing a 400 when it is missing
func PathParam(w http.ResponseWriter, r *http.Request, name, label string) (string, bool) {
	value := strings.TrimSpace(r.PathValue(name))
	if value == "" {
		httputil.RespondError(w, http.StatusBadRequest, label+" is required")
		return "", false
	}
	if len(value) > config.MaxIDLength {
		httputil.RespondError(w, http.StatusBadRequest, fmt.Sprintf("%s exceeds %d characters", label, config.MaxIDLength))
		return "", false
	}
	return value, true
}

// parseBody decodes the request body, writing the error response itself
func parseBody(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := httputil.ParseJSON(w, r, dest); err != nil {
		if errors.Is(err, httputil.ErrBodyTooLarge) {
			httputil.RespondError(w, http.StatusRequestEntityTooLarge, err.Error())
			return false
		}
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var limitErr *domain.BranchLimitExceededError
	var httpErr domain.HTTPError

	switch {
	case errors.As(err, &limitErr):
		httputil.RespondErrorWithExtras(w, http.StatusConflict, branchLimitDetail(limitErr), map[string]interface{}{
			"code":         "branch_limit_exceeded",
			"root_id":      limitErr.RootID,
			"max_variants": limitErr.Limit,
			"max_versions": limitErr.Limit + 1,
		})
	case errors.As(err, &httpErr):
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		httputil.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrTransient):
		w.Header().Set("Retry-After", "1")
		httputil.RespondError(w, http.StatusServiceUnavailable, "too many concurrent retries of this message, try again")
	case errors.Is(err, domain.ErrDataIntegrity):
		logger.Error("data integrity violation", "path", r.URL.Path, "request_id", httputil.GetRequestID(r), "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "message history is inconsistent")
	default:
		logger.Error("request failed", "path", r.URL.Path, "request_id", httputil.GetRequestID(r), "error", err)
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func branchLimitDetail(err *domain.BranchLimitExceededError) string {
	return fmt.Sprintf(
		"This message already has %d alternate versions. At most %d versions are kept per message; retry a different message instead.",
		err.Limit, err.Limit+1,
	)
}
