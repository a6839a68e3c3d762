// Package lifecycle holds the process-level endpoints: self-shutdown,
// health and readiness probes, and the optional browser launch.
package lifecycle

import (
	"os"
	"sync"
	"time"

	"github.com/fluxorio/tasklist/pkg/core"
	"github.com/fluxorio/tasklist/pkg/core/failfast"
	"github.com/fluxorio/tasklist/pkg/web"
	"github.com/valyala/fasthttp"
)

// ShutdownMessage is returned by POST /shutdown
const ShutdownMessage = "Server shutting down..."

// DefaultShutdownDelay lets the response flush before the interrupt arrives
const DefaultShutdownDelay = 100 * time.Millisecond

// Signaller delivers the stop signal to the running process
type Signaller func() error

// InterruptSelf sends os.Interrupt to the current process
func InterruptSelf() error {
	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		return err
	}
	return p.Signal(os.Interrupt)
}

// ShutdownHandler serves POST /shutdown
type ShutdownHandler struct {
	logger core.Logger
	signal Signaller
	delay  time.Duration
	once   sync.Once
}

// ShutdownOption customizes a ShutdownHandler
type ShutdownOption func(*ShutdownHandler)

// WithSignaller replaces InterruptSelf
func WithSignaller(s Signaller) ShutdownOption {
	return func(h *ShutdownHandler) {
		if s != nil {
			h.signal = s
		}
	}
}

// WithDelay sets the pause between responding and signalling
func WithDelay(d time.Duration) ShutdownOption {
	return func(h *ShutdownHandler) {
		if d >= 0 {
			h.delay = d
		}
	}
}

// NewShutdownHandler creates the handler.
// Fail-fast: panics if logger is nil.
func NewShutdownHandler(logger core.Logger, opts ...ShutdownOption) *ShutdownHandler {
	failfast.NotNil(logger, "logger")
	h := &ShutdownHandler{
		logger: logger,
		signal: InterruptSelf,
		delay:  DefaultShutdownDelay,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts POST /shutdown on router
func (h *ShutdownHandler) RegisterRoutes(router *web.Router) {
	router.POST("/shutdown", h.shutdown)
}

// shutdown answers immediately and signals once; repeated calls only answer
func (h *ShutdownHandler) shutdown(c *web.FastRequestContext) error {
	h.once.Do(func() {
		logger := h.logger.WithContext(c.Context())
		logger.Info("shutdown requested")
		time.AfterFunc(h.delay, func() {
			if err := h.signal(); err != nil {
				logger.Errorf("deliver shutdown signal: %v", err)
			}
		})
	})
	return c.JSON(fasthttp.StatusOK, map[string]string{"message": ShutdownMessage})
}
