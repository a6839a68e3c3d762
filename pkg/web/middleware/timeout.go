package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/fluxorio/tasklist/pkg/web"
)

// TimeoutConfig configures request deadline middleware
type TimeoutConfig struct {
	// Timeout bounds the request-scoped context handed to storage calls
	Timeout time.Duration

	// SkipPaths are path prefixes left without a deadline
	SkipPaths []string
}

// DefaultTimeoutConfig returns a default timeout configuration
func DefaultTimeoutConfig(timeout time.Duration) TimeoutConfig {
	return TimeoutConfig{
		Timeout:   timeout,
		SkipPaths: []string{},
	}
}

// Timeout attaches a deadline to the request context.
// The handler keeps running on the request goroutine; blocking calls that take
// ctx.Context() fail with context.DeadlineExceeded once the deadline passes.
func Timeout(config TimeoutConfig) web.FastMiddleware {
	if config.Timeout <= 0 {
		panic("Timeout: timeout duration must be positive")
	}

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			path := string(ctx.Path())
			for _, skipPath := range config.SkipPaths {
				if strings.HasPrefix(path, skipPath) {
					return next(ctx)
				}
			}

			parent := ctx.Context()
			timeoutCtx, cancel := context.WithTimeout(parent, config.Timeout)
			defer cancel()

			ctx.SetContext(timeoutCtx)
			defer ctx.SetContext(parent)
			return next(ctx)
		}
	}
}
