// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, the access log. Applicants send their
// email, phone and payment identifiers through this API, so nothing is logged
// verbatim: bodies are never logged, sensitive headers are masked, and query
// strings and header values are scrubbed for emails, phone numbers, UUIDs
// and payment signatures. Named query parameters can be masked outright.
//
// The middleware also attaches the request-scoped logger returned by
// LoggerFrom, so handler logs carry the request ID.
package middleware

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures additional scrubbing.
type RedactOptions struct {
	// MaskHeaders are masked in full, on top of Authorization, Cookie and
	// Set-Cookie. Case-insensitive.
	MaskHeaders []string
	// MaskQueryParams are query parameters whose values are masked in full.
	MaskQueryParams []string
}

var (
	uuidRE = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	// HMAC-SHA256 hex digests, as sent in payment callbacks.
	sigRE   = regexp.MustCompile(`(?i)\b[0-9a-f]{64}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so hex runs of a UUID never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redact scrubs s. UUIDs and signatures go before phones: the phone pattern
// is the loosest and would eat their digit runs.
func redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = sigRE.ReplaceAllString(s, "[REDACTED:sig]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	s = phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
	return s
}

// maskQuery replaces the values of the named parameters, then scrubs the rest.
func maskQuery(raw string, params map[string]struct{}) string {
	if raw == "" || len(params) == 0 {
		return redact(raw)
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return redact(raw)
	}
	for k := range vals {
		if _, ok := params[strings.ToLower(k)]; ok {
			vals[k] = []string{"[REDACTED]"}
		}
	}
	out, _ := url.QueryUnescape(vals.Encode())
	return redact(out)
}

func lowerSet(items []string, base ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(items)+len(base))
	for _, h := range append(base, items...) {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			out[h] = struct{}{}
		}
	}
	return out
}

// RedactingLogger logs every request after it completes: info below 400, warn
// for 4xx, error for 5xx or when handlers recorded gin errors.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet(opts.MaskHeaders, "authorization", "cookie", "set-cookie")
	maskParams := lowerSet(opts.MaskQueryParams)

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		safeQuery := truncate(maskQuery(c.Request.URL.RawQuery, maskParams), maxQueryLogLength)

		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redact(strings.Join(vv, ", "))
		}

		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}
		scoped := log.With().
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(loggerKey, &scoped)

		c.Next()

		status := c.Writer.Status()
		ev := scoped.Info()
		switch {
		case status >= 500 || len(c.Errors) > 0:
			ev = scoped.Error()
		case status >= 400:
			ev = scoped.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		if a := Actor(c); a != "" {
			ev = ev.Str("actor", redact(a))
		}

		ev.
			Str("query", safeQuery).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", safeHeaders).
			Msg("http_request")
	}
}
