package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"

	"rollguard/internal/platform/middleware"
	"rollguard/pkg/platform/httputil"
)

// PerActor rejects requests with 429 once the calling actor exhausts its
// window. It must run after the actor has been resolved.
func PerActor(l *Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := middleware.ActorFrom(r.Context())
			result := l.Allow(actor.ID)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				logger.WarnContext(r.Context(), "rate limit exceeded",
					"actor_id", actor.ID,
					"path", r.URL.Path,
				)
				w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
				httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.ErrorResponse{
					Error:       "rate_limit_exceeded",
					Description: "too many requests, retry after " + strconv.Itoa(result.RetryAfter) + "s",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
