package web

import (
	"golang.org/x/time/rate"
)

// msgRateLimited is shown when outbound submits exceed the configured rate
const msgRateLimited = "Error: Too many requests. Please wait a moment and try again."

// newRateLimiter returns nil when rate limiting is disabled
func newRateLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 || burst <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// allowSubmit reports whether another call to the backend may be made now
func (s *Server) allowSubmit() bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow()
}
