package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimit is a fixed-window limiter keyed on client IP, backed by
// Redis INCR. With no Redis client configured, or when Redis is down,
// requests pass through: availability of checkout beats strictness here.
func RateLimit(rdb *redis.Client, limit int, window time.Duration, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rdb == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := fmt.Sprintf("ratelimit:%s:%s", r.URL.Path, clientIP(r))

			count, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				rdb.Expire(ctx, key, window)
			}

			if count > int64(limit) {
				logger.Warn("rate limit exceeded",
					zap.String("key", key),
					zap.Int64("count", count))
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	// RealIP middleware already rewrote RemoteAddr from the proxy headers.
	if ip := r.RemoteAddr; ip != "" {
		return ip
	}
	return "unknown"
}
