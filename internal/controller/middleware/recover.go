package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"hpcgateway/internal/logger"
)

// Recover turns a panicking handler into a 500 response.
func Recover(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.FromContext(r.Context(), log).Error("handler panicked",
						"panic", fmt.Sprint(v),
						"stack", string(debug.Stack()),
					)
					writeErrorBody(w, http.StatusInternalServerError, "Something went wrong.", "InternalError")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
