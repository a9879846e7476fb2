package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDHeader carries the request id in both directions
const RequestIDHeader = "X-Request-ID"

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// RequestIDMiddleware reuses the caller's request id or assigns a new one
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// GetRequestID returns the request id stored by RequestIDMiddleware
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// LoggingMiddleware adds request logging and optional request metrics
func LoggingMiddleware(logger *zap.Logger, recorder RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", rw.statusCode),
				zap.Int64("duration_ms", duration.Milliseconds()),
				zap.String("request_id", GetRequestID(r.Context())),
			}
			switch {
			case rw.statusCode >= 500:
				logger.Error("HTTP request", fields...)
			case rw.statusCode >= 400:
				logger.Warn("HTTP request", fields...)
			default:
				logger.Debug("HTTP request", fields...)
			}

			if recorder != nil {
				// The matched pattern keeps route cardinality bounded
				route := r.Pattern
				if route == "" {
					route = "unmatched"
				}
				recorder.RecordHTTPRequest(r.Method, route, rw.statusCode, duration)
			}
		})
	}
}

// BasicAuthMiddleware adds HTTP Basic Auth protection
func BasicAuthMiddleware(username, password string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="threadfetch"`)
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}

			validUser := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
			validPass := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1

			if !validUser || !validPass {
				w.Header().Set("WWW-Authenticate", `Basic realm="threadfetch"`)
				http.Error(w, "Invalid credentials", http.StatusUnauthorized)
				logger.Warn("failed authentication attempt",
					zap.String("username", user),
					zap.String("remote_addr", r.RemoteAddr))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
