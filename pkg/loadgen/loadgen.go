// Package loadgen drives concurrent traffic against a running tasklist server
// and reports status codes and latency, mainly to observe backpressure (503) behavior.
package loadgen

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fluxorio/tasklist/pkg/core"
	"github.com/fluxorio/tasklist/pkg/core/failfast"
	"github.com/valyala/fasthttp"
)

// Config configures a load run
type Config struct {
	// BaseURL of the server, e.g. "http://127.0.0.1:5000"
	BaseURL string

	// Workers is the number of concurrent clients
	Workers int

	// Requests is the total number of requests sent
	Requests int

	// CreateRatio is the share of requests that POST /tasks; the rest GET /tasks
	CreateRatio float64

	// Timeout bounds each request
	Timeout time.Duration
}

// DefaultConfig returns a small mixed run against baseURL
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		Workers:     32,
		Requests:    1000,
		CreateRatio: 0.2,
		Timeout:     5 * time.Second,
	}
}

func (c Config) validate() error {
	switch {
	case c.BaseURL == "":
		return &core.Error{Code: "INVALID_CONFIG", Message: "BaseURL cannot be empty"}
	case !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://"):
		return &core.Error{Code: "INVALID_CONFIG", Message: "BaseURL must start with http:// or https://"}
	case c.Workers < 1:
		return &core.Error{Code: "INVALID_CONFIG", Message: "Workers must be positive"}
	case c.Requests < 1:
		return &core.Error{Code: "INVALID_CONFIG", Message: "Requests must be positive"}
	case c.CreateRatio < 0 || c.CreateRatio > 1:
		return &core.Error{Code: "INVALID_CONFIG", Message: "CreateRatio must be within [0, 1]"}
	case c.Timeout <= 0:
		return &core.Error{Code: "INVALID_CONFIG", Message: "Timeout must be positive"}
	}
	return nil
}

// Report summarizes a run
type Report struct {
	Requests int64          `json:"requests"`
	Errors   int64          `json:"errors"`
	ByStatus map[int]int64  `json:"by_status"`
	Elapsed  time.Duration  `json:"elapsed"`
	Latency  LatencySummary `json:"latency"`
}

// LatencySummary holds latency percentiles of completed requests
type LatencySummary struct {
	P50 time.Duration `json:"p50"`
	P90 time.Duration `json:"p90"`
	P99 time.Duration `json:"p99"`
	Max time.Duration `json:"max"`
}

// Rejected returns the number of 503 responses
func (r Report) Rejected() int64 {
	return r.ByStatus[fasthttp.StatusServiceUnavailable]
}

// Throughput returns completed requests per second
func (r Report) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Requests-r.Errors) / r.Elapsed.Seconds()
}

// Generator sends the configured traffic
type Generator struct {
	config Config
	client *fasthttp.Client
	logger core.Logger
}

// New creates a generator. A nil client gets a default fasthttp.Client.
// Fail-fast: panics if logger is nil.
func New(config Config, client *fasthttp.Client, logger core.Logger) (*Generator, error) {
	failfast.NotNil(logger, "logger")
	if err := config.validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = &fasthttp.Client{
			Name:                "tasklist-load",
			MaxConnsPerHost:     config.Workers,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 10 * time.Second,
		}
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Generator{config: config, client: client, logger: logger}, nil
}

// Run sends every request and returns the report; cancelling ctx ends the run early
func (g *Generator) Run(ctx context.Context) (Report, error) {
	pool := newWorkerPool(ctx, g.config.Workers, g.config.Workers)
	pool.start()

	var (
		mu        sync.Mutex
		byStatus  = make(map[int]int64)
		latencies = make([]time.Duration, 0, g.config.Requests)
		sent      atomic.Int64
		errs      atomic.Int64
	)

	createEvery := createInterval(g.config.CreateRatio)
	start := time.Now()

	var submitErr error
	for i := 0; i < g.config.Requests; i++ {
		create := createEvery > 0 && i%createEvery == 0
		seq := i
		err := pool.submit(ctx, func(ctx context.Context) {
			status, d, err := g.send(ctx, create, seq)
			sent.Add(1)
			if err != nil {
				errs.Add(1)
				g.logger.Debugf("request %d failed: %v", seq, err)
				return
			}
			mu.Lock()
			byStatus[status]++
			latencies = append(latencies, d)
			mu.Unlock()
		})
		if err != nil {
			submitErr = err
			break
		}
	}
	pool.drain()

	report := Report{
		Requests: sent.Load(),
		Errors:   errs.Load(),
		ByStatus: byStatus,
		Elapsed:  time.Since(start),
		Latency:  summarize(latencies),
	}
	if submitErr != nil {
		return report, fmt.Errorf("load run stopped after %d requests: %w", report.Requests, submitErr)
	}
	return report, nil
}

// send issues one request and returns its status and latency
func (g *Generator) send(ctx context.Context, create bool, seq int) (int, time.Duration, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(g.config.BaseURL + "/tasks")
	req.Header.Set(core.HeaderRequestID, "load-"+strconv.Itoa(seq))
	if create {
		req.Header.SetMethod(fasthttp.MethodPost)
		req.Header.SetContentType("application/json")
		req.SetBodyString(`{"title":"load test ` + strconv.Itoa(seq) + `"}`)
	} else {
		req.Header.SetMethod(fasthttp.MethodGet)
	}

	timeout := g.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	start := time.Now()
	if err := g.client.DoTimeout(req, resp, timeout); err != nil {
		return 0, 0, err
	}
	return resp.StatusCode(), time.Since(start), nil
}

// createInterval converts a ratio into "every nth request"; 0 means never
func createInterval(ratio float64) int {
	if ratio <= 0 {
		return 0
	}
	n := int(1/ratio + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

func summarize(latencies []time.Duration) LatencySummary {
	if len(latencies) == 0 {
		return LatencySummary{}
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	at := func(p float64) time.Duration {
		idx := int(p*float64(len(latencies))+0.5) - 1
		if idx < 0 {
			idx = 0
		}
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return LatencySummary{
		P50: at(0.50),
		P90: at(0.90),
		P99: at(0.99),
		Max: latencies[len(latencies)-1],
	}
}
