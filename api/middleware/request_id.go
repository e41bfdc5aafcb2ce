package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/orderledger/pkg/logger"
)

const (
	requestIDHeader   = "X-Request-Id"
	maxRequestIDLen   = 128
	correlationHeader = "X-Correlation-Id"
)

// RequestID propagates the caller's request id, or mints one, and echoes it
// back on the response.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := inboundRequestID(r)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func inboundRequestID(r *http.Request) string {
	for _, header := range []string{requestIDHeader, correlationHeader} {
		value := strings.TrimSpace(r.Header.Get(header))
		if value != "" && len(value) <= maxRequestIDLen {
			return value
		}
	}
	return ""
}
