package middleware

import (
	"time"

	"github.com/fluxorio/tasklist/pkg/core"
	"github.com/fluxorio/tasklist/pkg/web"
)

// AccessLog logs one line per request with method, path, status, duration and request ID.
// Server errors are logged at WARN, everything else at INFO.
func AccessLog(logger core.Logger) web.FastMiddleware {
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			start := time.Now()
			err := next(ctx)

			status := ctx.StatusCode()
			if err != nil && status < 500 {
				// The router turns handler errors into 500 after this returns
				status = 500
			}

			entry := logger.WithContext(ctx.Context()).WithFields(map[string]interface{}{
				"method":      string(ctx.Method()),
				"path":        string(ctx.Path()),
				"status":      status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			if status >= 500 {
				entry.Warn("request")
			} else {
				entry.Info("request")
			}
			return err
		}
	}
}
