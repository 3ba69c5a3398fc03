package api

import (
    "bufio"
    "errors"
    "log"
    "net"
    "net/http"
    "regexp"
    "strconv"
    "time"

    "topsolver/internal/metrics"
)

// statusWriter records the status and size of a response. It forwards Flush so SSE keeps
// working behind the middleware.
type statusWriter struct {
    http.ResponseWriter
    status int
    bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
    if w.status == 0 { w.status = http.StatusOK }
    n, err := w.ResponseWriter.Write(b)
    w.bytes += n
    return n, err
}

func (w *statusWriter) Flush() {
    if f, ok := w.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := w.ResponseWriter.(http.Hijacker)
    if !ok { return nil, nil, errors.New("hijack not supported") }
    w.status = http.StatusSwitchingProtocols
    return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

var idSegment = regexp.MustCompile(`/[0-9a-fA-F]{8}-[0-9a-fA-F-]{27,}`)

// metricPath collapses ids so path labels stay bounded.
func metricPath(p string) string {
    return idSegment.ReplaceAllString(p, "/{id}")
}

// withMiddleware wraps h with rate limiting, request metrics and access logging.
func (s *Server) withMiddleware(h http.Handler) http.Handler {
    metrics.RegisterDefault()
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if s.limiter != nil && !s.limiter.Allow() {
            metrics.RateLimited.Inc()
            w.Header().Set("Retry-After", "1")
            writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded", r.URL.Path)
            return
        }
        start := time.Now()
        sw := &statusWriter{ResponseWriter: w}
        h.ServeHTTP(sw, r)
        if sw.status == 0 { sw.status = http.StatusOK }
        dur := time.Since(start)
        path := metricPath(r.URL.Path)
        code := strconv.Itoa(sw.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, path, code).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, path, code).Observe(dur.Seconds())
        log.Printf("method=%s path=%s status=%d bytes=%d dur=%dms", r.Method, r.URL.Path, sw.status, sw.bytes, dur.Milliseconds())
    })
}
