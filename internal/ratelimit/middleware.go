package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/RedBackRubbish/TheNest/internal/model"
)

// Middleware enforces a per-client-IP rate limit. Limiter errors fail
// open: a broken limiter must not take mission traffic down with it.
func Middleware(limiter Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), clientIP(r))
			if err != nil {
				logger.Warn("ratelimit: limiter error, failing open", "error", err)
				allowed = true
			}
			if !allowed {
				w.Header().Set("Retry-After", "1")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(model.APIError{
					Error: model.ErrorDetail{
						Code:    model.ErrCodeRateLimited,
						Message: "too many requests",
					},
					Meta: model.ResponseMeta{Timestamp: time.Now().UTC()},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the client IP from RemoteAddr. X-Forwarded-For is not
// trusted: any client can set it to bypass limiting. Behind a trusted
// proxy, configure the proxy to rewrite RemoteAddr instead.
func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
