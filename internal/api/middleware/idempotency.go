package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Idempotency dedupes retried state-changing requests by the caller's
// Idempotency-Key header. A repeated key gets 409 instead of a second
// booking. Requests without the header pass through untouched, as does
// everything when Redis is unavailable (nil client).
func Idempotency(redisClient *redis.Client) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if redisClient == nil {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			idemKey := fmt.Sprintf("idempotency:%s", key)
			ctx := r.Context()

			// Lock the key; a short TTL keeps a crashed request from
			// blocking the key forever.
			acquired, err := redisClient.SetNX(ctx, idemKey, "PROCESSING", 10*time.Second).Result()
			if err != nil {
				// Redis down must not take the write path down with it.
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				w.Header().Set("X-Idempotency-Hit", "true")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"error": "duplicate_request", "message": "a request with this Idempotency-Key was already accepted"}`))
				return
			}

			next.ServeHTTP(w, r)

			// Keep the key around so late client retries still dedupe.
			redisClient.Set(ctx, idemKey, "COMPLETED", 24*time.Hour)
		})
	}
}
