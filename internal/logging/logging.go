// Package logging builds the service logger and the request log middleware.
package logging

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
)

var sensitiveHeaders = map[string]bool{
	"authorization": true,
	"cookie":        true,
	"x-api-key":     true,
}

func New(level string) *slog.Logger {
	return logs.GetLoggerFromString(strings.ToUpper(level))
}

func mask(v string) string {
	if v == "" {
		return ""
	}
	if utf8.RuneCountInString(v) <= 2 {
		return "<redacted>"
	}
	first, _ := utf8.DecodeRuneInString(v)
	last, _ := utf8.DecodeLastRuneInString(v)
	return string(first) + "*****" + string(last)
}

// SafeHeaders renders headers with credentials masked.
func SafeHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		v := strings.Join(vs, ",")
		if sensitiveHeaders[strings.ToLower(k)] {
			v = mask(v)
		}
		out[k] = v
	}
	return out
}

// SafeQuery returns the raw query with the token parameter masked.
func SafeQuery(r *http.Request) string {
	q := r.URL.Query()
	if t := q.Get("token"); t != "" {
		q.Set("token", mask(t))
	}
	return q.Encode()
}

func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		log.Debug("Incoming request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"query", SafeQuery(c.Request),
			"headers", SafeHeaders(c.Request.Header),
		)

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"route", c.FullPath(),
			"status", status,
			"latency", time.Since(start),
			"request_id", c.GetString("request_id"),
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("Request failed", attrs...)
		case status >= http.StatusBadRequest:
			log.Warn("Request rejected", attrs...)
		default:
			log.Info("Request served", attrs...)
		}
	}
}
