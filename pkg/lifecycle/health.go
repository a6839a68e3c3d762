package lifecycle

import (
	"context"
	"time"

	"github.com/fluxorio/tasklist/pkg/core"
	"github.com/fluxorio/tasklist/pkg/web"
	"github.com/valyala/fasthttp"
)

// Pinger checks database reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// TaskCounter reports the number of stored tasks
type TaskCounter interface {
	Count(ctx context.Context) (int, error)
}

// LoadSource reports server load
type LoadSource interface {
	Metrics() web.ServerMetrics
}

// MaxReadyUtilization is the backpressure utilization at or above which /ready reports 503
const MaxReadyUtilization = 90.0

// HealthConfig wires the readiness checks; nil members are skipped
type HealthConfig struct {
	DB      Pinger
	Tasks   TaskCounter
	Server  LoadSource
	Timeout time.Duration
	Logger  core.Logger
}

// ReadyResponse is the body of GET /ready
type ReadyResponse struct {
	Status      string  `json:"status"`
	Database    string  `json:"database"`
	Tasks       *int    `json:"tasks,omitempty"`
	Utilization float64 `json:"utilization"`
}

// RegisterHealth mounts GET /health (liveness) and GET /ready (readiness)
func RegisterHealth(router *web.Router, config HealthConfig) {
	if config.Timeout <= 0 {
		config.Timeout = 2 * time.Second
	}

	router.GET("/health", func(c *web.FastRequestContext) error {
		return c.JSON(fasthttp.StatusOK, map[string]string{"status": "UP"})
	})

	router.GET("/ready", func(c *web.FastRequestContext) error {
		ctx, cancel := context.WithTimeout(c.Context(), config.Timeout)
		defer cancel()

		resp := ReadyResponse{Status: "UP", Database: "UP"}
		if err := readiness(ctx, config, &resp); err != nil {
			if config.Logger != nil {
				config.Logger.WithContext(ctx).Warnf("readiness check failed: %v", err)
			}
			resp.Status = "DOWN"
			return c.JSON(fasthttp.StatusServiceUnavailable, resp)
		}
		return c.JSON(fasthttp.StatusOK, resp)
	})
}

func readiness(ctx context.Context, config HealthConfig, resp *ReadyResponse) error {
	if config.DB != nil {
		if err := config.DB.Ping(ctx); err != nil {
			resp.Database = "DOWN"
			return err
		}
	}
	if config.Tasks != nil {
		n, err := config.Tasks.Count(ctx)
		if err != nil {
			resp.Database = "DOWN"
			return err
		}
		resp.Tasks = &n
	}
	if config.Server != nil {
		resp.Utilization = config.Server.Metrics().Utilization
		if resp.Utilization >= MaxReadyUtilization {
			return &core.Error{Code: "OVERLOADED", Message: "server utilization above threshold"}
		}
	}
	return nil
}
