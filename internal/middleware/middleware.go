// Package middleware provides the HTTP middleware shared by the API router.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type requestIDKey struct{}

type clientIPKey struct{}

// RequestIDHeader carries the request identifier on responses.
const RequestIDHeader = "X-Request-ID"

// LocalClientIP is reported for every request in the local environment.
const LocalClientIP = "1.1.1.1"

// CodeInternal is the error code written when a handler panics.
const CodeInternal = "ERROR.INTERNAL"

// RequestID assigns each request a UUID, echoes it in the response header and
// stores it in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set(RequestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID stored by RequestID, if any.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ClientIP resolves the caller's address from X-Forwarded-For and stores it
// in the request context. The load balancer appends its own hop, so the
// client is the second-to-last entry; a single entry is taken as is. In local
// mode the address is fixed. Requests without the header carry no address.
func ClientIP(local bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := LocalClientIP
			if !local {
				ip = forwardedClientIP(r.Header.Get("X-Forwarded-For"))
			}
			if ip != "" {
				r = r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetClientIP returns the address stored by ClientIP and whether one was
// found.
func GetClientIP(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(clientIPKey{}).(string)
	return ip, ok && ip != ""
}

func forwardedClientIP(header string) string {
	if strings.TrimSpace(header) == "" {
		return ""
	}
	hops := strings.Split(header, ",")
	if len(hops) == 1 {
		return strings.TrimSpace(hops[0])
	}
	return strings.TrimSpace(hops[len(hops)-2])
}

// Logging writes one structured line per request.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", GetRequestID(r.Context())),
			}
			if ip, ok := GetClientIP(r.Context()); ok {
				fields = append(fields, zap.String("client_ip", ip))
			}
			logger.Info("request completed", fields...)
		})
	}
}

// Recover turns handler panics into a JSON 500.
func Recover(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("request_id", GetRequestID(r.Context())),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"` + CodeInternal + `"}` + "\n"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
