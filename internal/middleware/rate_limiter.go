package middleware

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimiterMiddleware applies a single global token bucket in front of
// every handler. Per-source behavioral limits live in the firewall; this
// one only protects the process itself.
type RateLimiterMiddleware struct {
	limiter *rate.Limiter
}

// NewRateLimiterMiddleware sets up the limiter with the given requests per
// second and burst, defaulting to 20 rps with a burst of 50.
func NewRateLimiterMiddleware(rps float64, burst int) Middleware {
	if burst == 0 {
		burst = 50
	}
	if rps == 0 {
		rps = 20
	}

	return &RateLimiterMiddleware{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (m *RateLimiterMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}

		next.ServeHTTP(w, r)
	})
}
