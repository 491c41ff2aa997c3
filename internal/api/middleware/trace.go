package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/genflow/internal/api/shared"
	"github.com/phrazzld/genflow/internal/platform/logger"
)

// maxRequestIDLength bounds client-supplied request IDs.
const maxRequestIDLength = 128

// NewRequestIDMiddleware tags every request with an ID. A client-supplied
// X-Request-ID is kept; otherwise a ULID is generated. The ID is echoed in
// the response header and attached to the request's logger.
//
// This middleware should be applied early in the middleware chain so that
// every later handler logs with the ID.
func NewRequestIDMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(shared.RequestIDHeader)
			if requestID == "" || len(requestID) > maxRequestIDLength {
				requestID = shared.NewRequestID()
			}
			w.Header().Set(shared.RequestIDHeader, requestID)

			ctx := shared.SetRequestID(r.Context(), requestID)
			ctx = logger.WithLogger(ctx, base.With(slog.String("request_id", requestID)))

			logger.FromContext(ctx).Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CORS allows any origin, header and method, and answers preflight
// requests directly.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "*")
		h.Set("Access-Control-Allow-Methods", "*")

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
