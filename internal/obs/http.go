package obs

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-Id"

// statusRecorder captures the status code and body size of a response.
// Unwrap lets http.ResponseController reach the underlying writer.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// RequestContextMiddleware attaches a request ID, and the W3C trace ID when
// a traceparent header is present, to the request context. The ID is taken
// from X-Request-Id, then the trace ID, then generated, and is echoed back.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
		traceID := traceIDFrom(traceparent)

		requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		switch {
		case requestID != "":
		case traceID != "":
			requestID = traceID
		default:
			requestID = newRequestID()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := WithCorrelation(r.Context(), Correlation{
			RequestID:   requestID,
			TraceID:     traceID,
			Traceparent: traceparent,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AccessLogMiddleware emits one http_access event per request: debug for
// successes and client errors, error for server errors.
func AccessLogMiddleware(pkg string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.statusCode()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		From(r.Context()).With("pkg", pkg).Log(r.Context(), level, "http_access",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"dur_ms", float64(time.Since(start).Microseconds())/1000.0,
			"req_bytes", max(r.ContentLength, 0),
			"resp_bytes", rec.bytes,
		)
	})
}

// traceparentPattern is version-traceid-parentid-flags, lowercase hex.
var traceparentPattern = regexp.MustCompile(`^[0-9a-f]{2}-([0-9a-f]{32})-[0-9a-f]{16}-[0-9a-f]{2}$`)

func traceIDFrom(traceparent string) string {
	m := traceparentPattern.FindStringSubmatch(strings.ToLower(traceparent))
	if m == nil || strings.Trim(m[1], "0") == "" {
		return ""
	}
	return m[1]
}
