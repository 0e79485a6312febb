package middleware

import (
	"log/slog"
	"net/http"
)

// Chain wraps h in the standard server stack. Request logging is outermost so
// recovered panics and requests rejected by inner middleware still get an
// access line; inner wraps h in the order given, the first one closest to Recovery.
func Chain(h http.Handler, logger *slog.Logger, inner ...func(http.Handler) http.Handler) http.Handler {
	for i := len(inner) - 1; i >= 0; i-- {
		h = inner[i](h)
	}
	h = Recovery(logger)(h)
	return RequestLogger(logger)(h)
}
