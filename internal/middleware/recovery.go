package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"cardfolio-api/internal/logger"
	"cardfolio-api/pkg/apierror"
	"cardfolio-api/pkg/response"
)

// NewRecovery turns a panicking handler into a 500 response and logs the
// panic with its stack.
func NewRecovery(log *zap.Logger) func(http.Handler) http.Handler {
	log = logger.Named(log, "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				log.Error("panic in handler",
					requestField(r.Context()),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				response.Error(w, r, apierror.InternalError("internal server error"))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
