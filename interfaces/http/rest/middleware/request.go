package middleware

import (
	"net/http"

	"tattoo-datasync/pkg/common"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestContext copies chi's request id into the shared context key and
// echoes it on the response.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := middleware.GetReqID(r.Context())
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(common.WithRequestID(r.Context(), id)))
	})
}
