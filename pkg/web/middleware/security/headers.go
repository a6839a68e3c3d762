package security

import (
	"strconv"

	"github.com/fluxorio/tasklist/pkg/web"
)

// HeadersConfig configures security headers
type HeadersConfig struct {
	// HSTS (HTTP Strict Transport Security); leave off for plain-HTTP localhost serving
	HSTS       bool
	HSTSMaxAge int // in seconds, default 31536000 (1 year)

	// CSP (Content Security Policy)
	CSP string

	// X-Frame-Options: DENY or SAMEORIGIN
	XFrameOptions string

	// X-Content-Type-Options: nosniff
	XContentTypeOptions bool

	// Referrer-Policy
	ReferrerPolicy string

	// Cross-Origin-Opener-Policy / Cross-Origin-Resource-Policy
	CrossOriginOpenerPolicy   string
	CrossOriginResourcePolicy string

	// Custom headers
	CustomHeaders map[string]string
}

// DefaultHeadersConfig returns headers suitable for the bundled page and JSON API:
// scripts and fetches only from the same origin, no framing.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP:                       "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; connect-src 'self'; frame-ancestors 'none'; base-uri 'none'",
		XFrameOptions:             "DENY",
		XContentTypeOptions:       true,
		ReferrerPolicy:            "no-referrer",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "same-origin",
		CustomHeaders:             make(map[string]string),
	}
}

// Headers middleware adds security headers to responses
func Headers(config HeadersConfig) web.FastMiddleware {
	headers := make(map[string]string)
	if config.HSTS {
		maxAge := config.HSTSMaxAge
		if maxAge <= 0 {
			maxAge = 31536000
		}
		headers["Strict-Transport-Security"] = "max-age=" + strconv.Itoa(maxAge)
	}
	if config.CSP != "" {
		headers["Content-Security-Policy"] = config.CSP
	}
	if config.XFrameOptions != "" {
		headers["X-Frame-Options"] = config.XFrameOptions
	}
	if config.XContentTypeOptions {
		headers["X-Content-Type-Options"] = "nosniff"
	}
	if config.ReferrerPolicy != "" {
		headers["Referrer-Policy"] = config.ReferrerPolicy
	}
	if config.CrossOriginOpenerPolicy != "" {
		headers["Cross-Origin-Opener-Policy"] = config.CrossOriginOpenerPolicy
	}
	if config.CrossOriginResourcePolicy != "" {
		headers["Cross-Origin-Resource-Policy"] = config.CrossOriginResourcePolicy
	}
	for key, value := range config.CustomHeaders {
		headers[key] = value
	}

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			for key, value := range headers {
				ctx.RequestCtx.Response.Header.Set(key, value)
			}
			return next(ctx)
		}
	}
}
