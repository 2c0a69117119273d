package server

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/mitchellh/colorstring"

	"github.com/hupe1980/elmdev/internal/config"
	"github.com/hupe1980/elmdev/internal/logging"
)

const clfTimeLayout = "02/Jan/2006:15:04:05 -0700"

// Entry is everything recorded about one request.
type Entry struct {
	Time      time.Time
	Method    string
	URL       string
	Proto     string
	Status    int
	Bytes     int64
	Duration  time.Duration
	Remote    string
	Referer   string
	UserAgent string
	RequestID string
}

// RequestLogger writes one line (or slog record) per request.
type RequestLogger struct {
	format string
	out    io.Writer
	logger *slog.Logger
	color  colorstring.Colorize
	now    func() time.Time

	mu sync.Mutex
}

// NewRequestLogger returns a logger for the given format. Colour is only
// used by the dev format, and only when out is a terminal and noColor is
// false.
func NewRequestLogger(format string, out io.Writer, logger *slog.Logger, noColor bool) *RequestLogger {
	if out == nil {
		out = os.Stdout
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &RequestLogger{
		format: format,
		out:    out,
		logger: logger,
		color: colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: noColor || !logging.IsTerminal(out),
			Reset:   true,
		},
		now: time.Now,
	}
}

// Middleware wraps next, logging each request after it completes.
func (l *RequestLogger) Middleware(next http.Handler) http.Handler {
	if l.format == config.RequestLogNone {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := l.now()
		sw := &statusWriter{ResponseWriter: w}

		next.ServeHTTP(sw, r)

		l.Log(Entry{
			Time:      start,
			Method:    r.Method,
			URL:       r.URL.RequestURI(),
			Proto:     r.Proto,
			Status:    sw.status(),
			Bytes:     sw.size(),
			Duration:  l.now().Sub(start),
			Remote:    remoteHost(r.RemoteAddr),
			Referer:   r.Referer(),
			UserAgent: r.UserAgent(),
			RequestID: RequestIDFromContext(r.Context()),
		})
	})
}

// Log writes e in the configured format.
func (l *RequestLogger) Log(e Entry) {
	if l.format == config.RequestLogJSON {
		l.logger.Info("request",
			slog.String("method", e.Method),
			slog.String("url", e.URL),
			slog.Int("status", e.Status),
			slog.Int64("bytes", e.Bytes),
			slog.Duration("duration", e.Duration),
			slog.String("remote", e.Remote),
			slog.String("requestId", e.RequestID),
		)

		return
	}

	line := l.Format(e)
	if line == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = fmt.Fprintln(l.out, line)
}

// Format renders e as a text line. It returns "" for formats that do
// not produce text.
func (l *RequestLogger) Format(e Entry) string {
	switch l.format {
	case config.RequestLogDev:
		return fmt.Sprintf("%s %s %s %s ms - %s",
			e.Method, e.URL, l.color.Color(statusColor(e.Status)+strconv.Itoa(e.Status)),
			millis(e.Duration), bytesOrDash(e.Bytes))
	case config.RequestLogTiny:
		return fmt.Sprintf("%s %s %d %s - %s ms",
			e.Method, e.URL, e.Status, bytesOrDash(e.Bytes), millis(e.Duration))
	case config.RequestLogShort:
		return fmt.Sprintf("%s - %s %s %s %d %s - %s ms",
			e.Remote, e.Method, e.URL, e.Proto, e.Status, bytesOrDash(e.Bytes), millis(e.Duration))
	case config.RequestLogCommon:
		return commonLine(e)
	case config.RequestLogCombined:
		return fmt.Sprintf("%s %q %q", commonLine(e), e.Referer, e.UserAgent)
	default:
		return ""
	}
}

func commonLine(e Entry) string {
	return fmt.Sprintf("%s - - [%s] \"%s %s %s\" %d %s",
		e.Remote, e.Time.Format(clfTimeLayout), e.Method, e.URL, e.Proto, e.Status, bytesOrDash(e.Bytes))
}

// statusColor follows the morgan dev palette.
func statusColor(status int) string {
	switch {
	case status >= 500:
		return "[red]"
	case status >= 400:
		return "[yellow]"
	case status >= 300:
		return "[cyan]"
	case status >= 200:
		return "[green]"
	default:
		return "[default]"
	}
}

func millis(d time.Duration) string {
	return strconv.FormatFloat(float64(d.Microseconds())/1000, 'f', 3, 64)
}

func bytesOrDash(n int64) string {
	if n <= 0 {
		return "-"
	}

	return strconv.FormatInt(n, 10)
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}

	return host
}

// statusWriter records the status code and body size of a response.
type statusWriter struct {
	http.ResponseWriter
	code  int
	bytes int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.code == 0 {
		w.code = code
	}

	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.code == 0 {
		w.code = http.StatusOK
	}

	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)

	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// size prefers the Content-Length header, which HEAD responses carry
// without a body, over the bytes actually written.
func (w *statusWriter) size() int64 {
	if cl := w.Header().Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			return n
		}
	}

	return w.bytes
}

func (w *statusWriter) status() int {
	if w.code == 0 {
		return http.StatusOK
	}

	return w.code
}
