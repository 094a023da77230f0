package api

import (
	"fmt"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/ncolesummers/weather-insights-agent/pkg/config"
)

// responseCapture records the status code written by downstream handlers
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController
func (rc *responseCapture) Unwrap() http.ResponseWriter {
	return rc.ResponseWriter
}

// Recoverer turns a handler panic into a logged 500 error envelope.
// It must wrap every other middleware that can panic.
func (s *Server) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				s.logger.Error(r.Context(), "panic recovered", fmt.Errorf("%v", rvr), map[string]interface{}{
					"method": r.Method,
					"path":   r.URL.Path,
					"stack":  string(debug.Stack()),
				})
				Error(w, r, NewAppError(ErrCodeInternalUnexpected, "an unexpected error occurred", nil))
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs method, path, status and duration for every request
func (s *Server) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.clock.Now()
		rc := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rc, r)

		attrs := map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rc.statusCode,
			"duration_ms": s.clock.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			attrs["request_id"] = reqID
		}

		switch {
		case rc.statusCode >= 500:
			s.logger.Error(r.Context(), "request completed", nil, attrs)
		case rc.statusCode >= 400:
			s.logger.Warn(r.Context(), "request completed", attrs)
		default:
			s.logger.Info(r.Context(), "request completed", attrs)
		}
	})
}

// rateLimiter is a process-wide token bucket shared by all clients
type rateLimiter struct {
	limiter *rate.Limiter
	limit   int
}

func newRateLimiter(cfg config.RateLimitConfig) *rateLimiter {
	if !cfg.Enabled || cfg.RequestsPerMinute <= 0 {
		return nil
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst),
		limit:   cfg.RequestsPerMinute,
	}
}

// RateLimit rejects requests with 429 once the token bucket is empty.
// Without a configured limiter it passes every request through.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		rl := s.limiter
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.limit))

		now := s.clock.Now()
		if !rl.limiter.AllowN(now, 1) {
			retryAfter := int(math.Ceil(60.0 / float64(rl.limit)))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Remaining", "0")

			s.logger.Warn(r.Context(), "rate limit exceeded", map[string]interface{}{
				"method": r.Method,
				"path":   r.URL.Path,
			})
			Error(w, r, NewAppError(ErrCodeRateLimit, "Rate limit exceeded. Please retry later.", nil))
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(rl.limiter.TokensAt(now))))
		next.ServeHTTP(w, r)
	})
}

// CORS applies the configured cross-origin policy and answers preflight requests
func (s *Server) CORS(next http.Handler) http.Handler {
	cors := s.config.CORS
	methods := strings.Join(cors.AllowedMethods, ", ")
	headers := strings.Join(cors.AllowedHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !originAllowed(cors.AllowedOrigins, origin) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		if len(cors.AllowedOrigins) == 1 && cors.AllowedOrigins[0] == "*" {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			if methods != "" {
				h.Set("Access-Control-Allow-Methods", methods)
			}
			if headers != "" {
				h.Set("Access-Control-Allow-Headers", headers)
			}
			if cors.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(cors.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
