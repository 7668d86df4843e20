/* Copyright 2025 Dnote Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package remotetest

import (
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles requests per API token the way the real service does
type RateLimiter struct {
	every time.Duration
	burst int

	mu       sync.Mutex
	visitors map[string]*rate.Limiter
	rejected int
}

// NewRateLimiter returns a limiter allowing one request per interval with the
// given burst capacity
func NewRateLimiter(every time.Duration, burst int) *RateLimiter {
	return &RateLimiter{
		every:    every,
		burst:    burst,
		visitors: map[string]*rate.Limiter{},
	}
}

// getVisitor returns the limiter of the given identifier, creating it if it
// was not seen before
func (rl *RateLimiter) getVisitor(identifier string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	l, ok := rl.visitors[identifier]
	if !ok {
		l = rate.NewLimiter(rate.Every(rl.every), rl.burst)
		rl.visitors[identifier] = l
	}

	return l
}

// Rejected returns the number of requests refused so far
func (rl *RateLimiter) Rejected() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return rl.rejected
}

// Limit is a middleware rejecting requests over the limit with 429 and a
// Retry-After hint
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limiter := rl.getVisitor(r.Header.Get("Authorization"))

		if !limiter.Allow() {
			rl.mu.Lock()
			rl.rejected++
			rl.mu.Unlock()

			wait := int(math.Ceil(rl.every.Seconds()))
			w.Header().Set("Retry-After", fmt.Sprintf("%d", wait))
			http.Error(w, "Request was throttled.", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// SetRateLimit throttles the service. A nil limiter removes the throttle.
func (s *Server) SetRateLimit(rl *RateLimiter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.limiter = rl
}

func (s *Server) limitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		rl := s.limiter
		s.mu.Unlock()

		if rl == nil {
			next.ServeHTTP(w, r)
			return
		}

		rl.Limit(next).ServeHTTP(w, r)
	})
}
