package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// statusRecorder captures the status code written by the wrapped handler
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	if rw.status == 0 {
		rw.status = statusCode
	}
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

func (rw *statusRecorder) Status() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

// Hijack lets the websocket endpoint take over the connection
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func wrapWriter(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w}
}

// LoggingMiddleware writes one access log line per request.
//
// Log levels:
//   - INFO: requests answered below 400
//   - WARN: client errors (4xx)
//   - ERROR: server errors (5xx)
//
// Query parameters are added at DEBUG. Bodies are never logged because they
// carry passwords and uploaded documents.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := wrapWriter(w)

		next.ServeHTTP(rec, r)

		status := rec.Status()
		level := slog.LevelInfo
		msg := "Request completed"
		switch {
		case status >= 500:
			level = slog.LevelError
			msg = "Request failed with error"
		case status >= 400:
			level = slog.LevelWarn
			msg = "Request failed"
		}

		attrs := []any{
			"request_id", RequestIDFrom(r.Context()),
			"remote_ip", ClientIP(r),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if r.URL.RawQuery != "" && slog.Default().Enabled(r.Context(), slog.LevelDebug) {
			attrs = append(attrs, "query", r.URL.Query())
		}
		slog.Log(r.Context(), level, msg, attrs...)
	})
}
