package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gateline/gateline/pkg/api/response"
	"github.com/gateline/gateline/pkg/logger"
)

// Recovery converts a handler panic into a 500 response so one broken
// request cannot take the listener down. The stack goes to the log, not to
// the client.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}

				log.ErrorContext(r.Context(), "panic recovered in handler",
					"error", v,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				requestID := GetRequestID(r.Context())
				if requestID == "" {
					requestID = "unknown"
				}
				response.Error(w,
					http.StatusInternalServerError,
					response.ErrCodeInternalServer,
					fmt.Sprintf("Internal server error: %v", v),
					requestID,
				)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
