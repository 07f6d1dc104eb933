package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gateline/gateline/pkg/api/response"
)

// Timeout caps how long a request handler may run. The wrapped handler gets
// a deadline-bearing context; when the deadline wins the race, the client
// receives a 504 and whatever the handler writes afterwards is discarded by
// net/http. A zero or negative duration disables the cap.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(w, r.WithContext(ctx))
			}()

			select {
			case <-done:
			case <-ctx.Done():
				requestID := GetRequestID(ctx)
				if requestID == "" {
					requestID = "unknown"
				}
				response.Error(w,
					http.StatusGatewayTimeout,
					response.ErrCodeGatewayTimeout,
					"Request timeout",
					requestID,
				)
			}
		})
	}
}
