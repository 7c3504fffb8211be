package middleware

import (
	"net/http"

	"miogallery/pkg/logger"
	"miogallery/pkg/utils"
)

// RecoverMiddleware catches panics escaping a handler, logs them with
// full request context, and returns a generic 500 to the caller. Raw
// panic values never reach the response body.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.LogError("panic recovered on %s %s: %v", r.Method, r.URL.Path, rec)
				utils.WriteError(w, http.StatusInternalServerError, utils.ErrServerInternal, "Server error.")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
