package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/fluxorio/tasklist/pkg/core"
	"github.com/fluxorio/tasklist/pkg/web"
	"github.com/valyala/fasthttp"
)

// RecoveryConfig configures panic recovery middleware
type RecoveryConfig struct {
	// Logger is the logger to use for panic logging (default: core.NewDefaultLogger())
	Logger core.Logger

	// StackTrace logs the goroutine stack with the panic
	StackTrace bool
}

// DefaultRecoveryConfig returns a default recovery configuration
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Logger:     core.NewDefaultLogger(),
		StackTrace: true,
	}
}

// Recovery middleware recovers from panics and returns a 500 JSON error.
// The panic value is logged, never sent to the client.
func Recovery(config RecoveryConfig) web.FastMiddleware {
	logger := config.Logger
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}

				fields := map[string]interface{}{
					"method": string(ctx.Method()),
					"path":   string(ctx.Path()),
				}
				if config.StackTrace {
					fields["stack"] = string(debug.Stack())
				}
				logger.WithContext(ctx.Context()).WithFields(fields).Errorf("panic recovered: %v", r)

				ctx.RequestCtx.ResetBody()
				if werr := ctx.ErrorJSON(fasthttp.StatusInternalServerError, "Internal Server Error"); werr != nil {
					err = fmt.Errorf("write panic response: %w", werr)
				}
			}()

			return next(ctx)
		}
	}
}
