package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"papertrader/pkg/utils"
)

// Recovery catches panics in downstream handlers, logs the stack trace and
// returns 500 instead of taking down the server.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				utils.GetGlobalLogger().Error("panic recovered",
					utils.Any("error", err),
					utils.String("stack", string(debug.Stack())),
				)
				http.Error(w, fmt.Sprintf("internal server error: %v", err), http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
