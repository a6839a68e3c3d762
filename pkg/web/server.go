package web

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/fluxorio/tasklist/pkg/core"
	"github.com/valyala/fasthttp"
)

// FastHTTPServerConfig configures the fasthttp server
type FastHTTPServerConfig struct {
	Addr            string
	Capacity        int // Concurrent requests admitted before 503
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxConns        int
	ReadBufferSize  int
	WriteBufferSize int
}

// DefaultFastHTTPServerConfig returns default configuration
func DefaultFastHTTPServerConfig(addr string) *FastHTTPServerConfig {
	return &FastHTTPServerConfig{
		Addr:            addr,
		Capacity:        1000,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxConns:        10000,
		ReadBufferSize:  8192,
		WriteBufferSize: 8192,
	}
}

// CCUBasedConfigWithUtilization returns configuration with target utilization percentage
// maxCCU: Maximum concurrent users capacity
// utilizationPercent: Target utilization under normal load (e.g., 67 for 67%)
// Capacity = maxCCU * utilizationPercent / 100; connections are allowed up to maxCCU
func CCUBasedConfigWithUtilization(addr string, maxCCU int, utilizationPercent int) *FastHTTPServerConfig {
	if utilizationPercent < 1 || utilizationPercent > 100 {
		utilizationPercent = 67
	}
	if maxCCU < 1 {
		maxCCU = 1
	}

	capacity := int(float64(maxCCU) * float64(utilizationPercent) / 100.0)
	if capacity < 1 {
		capacity = 1
	}

	config := DefaultFastHTTPServerConfig(addr)
	config.Capacity = capacity
	config.MaxConns = maxCCU
	return config
}

// FastHTTPServer serves a Router over fasthttp with CCU-based backpressure
type FastHTTPServer struct {
	router       *Router
	server       *fasthttp.Server
	addr         string
	logger       core.Logger
	backpressure *BackpressureController
	started      atomic.Bool

	totalRequests      atomic.Int64
	successfulRequests atomic.Int64 // 200-299
	errorRequests      atomic.Int64 // 500-599
}

// NewFastHTTPServer creates a new fasthttp server
func NewFastHTTPServer(config *FastHTTPServerConfig, logger core.Logger) *FastHTTPServer {
	if config == nil {
		config = DefaultFastHTTPServerConfig(":8080")
	}
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	s := &FastHTTPServer{
		router:       NewRouter(logger),
		addr:         config.Addr,
		logger:       logger,
		backpressure: NewBackpressureController(config.Capacity),
	}
	s.server = &fasthttp.Server{
		Handler:               s.handleRequest,
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		Concurrency:           config.MaxConns,
		ReadBufferSize:        config.ReadBufferSize,
		WriteBufferSize:       config.WriteBufferSize,
		NoDefaultServerHeader: true,
		CloseOnShutdown:       true,
	}
	return s
}

// Router returns the router
func (s *FastHTTPServer) Router() *Router {
	return s.router
}

// Addr returns the configured listen address
func (s *FastHTTPServer) Addr() string {
	return s.addr
}

// Handler returns the fasthttp handler, for serving on custom listeners
func (s *FastHTTPServer) Handler() fasthttp.RequestHandler {
	return s.handleRequest
}

// Start listens on the configured address (blocking call)
func (s *FastHTTPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves connections from ln until Stop (blocking call)
func (s *FastHTTPServer) Serve(ln net.Listener) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("server already started")
	}
	s.logger.Infof("HTTP server listening on %s", ln.Addr())
	return s.server.Serve(ln)
}

// Stop closes the listeners and waits for in-flight requests until ctx expires;
// connections still open at the deadline are cut.
func (s *FastHTTPServer) Stop(ctx context.Context) error {
	if !s.started.Load() {
		return nil
	}
	err := s.server.ShutdownWithContext(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger.Warn("HTTP server shutdown deadline reached; remaining requests were cut")
		return nil
	}
	return err
}

// Metrics returns current server metrics
func (s *FastHTTPServer) Metrics() ServerMetrics {
	bp := s.backpressure.GetMetrics()
	return ServerMetrics{
		Capacity:           bp.Capacity,
		InFlight:           bp.InFlight,
		RejectedRequests:   bp.Rejected,
		Utilization:        bp.Utilization,
		TotalRequests:      s.totalRequests.Load(),
		SuccessfulRequests: s.successfulRequests.Load(),
		ErrorRequests:      s.errorRequests.Load(),
	}
}

// ServerMetrics provides server performance metrics
type ServerMetrics struct {
	Capacity           int64   `json:"capacity"`
	InFlight           int64   `json:"in_flight"`
	RejectedRequests   int64   `json:"rejected_requests"`
	Utilization        float64 `json:"utilization"`
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	ErrorRequests      int64   `json:"error_requests"`
}

// handleRequest admits the request or rejects it with 503 when capacity is exhausted
func (s *FastHTTPServer) handleRequest(rc *fasthttp.RequestCtx) {
	if !s.backpressure.TryAcquire() {
		rc.SetStatusCode(fasthttp.StatusServiceUnavailable)
		rc.SetContentType("application/json")
		rc.SetBodyString(`{"error":"Service Unavailable"}`)
		return
	}
	defer s.backpressure.Release()

	s.processRequest(rc)
}

// processRequest assigns the request ID and routes the request
func (s *FastHTTPServer) processRequest(rc *fasthttp.RequestCtx) {
	requestID := core.NormalizeRequestID(string(rc.Request.Header.Peek(core.HeaderRequestID)))
	rc.Response.Header.Set(core.HeaderRequestID, requestID)

	s.totalRequests.Add(1)
	s.router.ServeFastHTTP(NewFastRequestContext(rc, requestID))

	status := rc.Response.StatusCode()
	if status >= 200 && status < 300 {
		s.successfulRequests.Add(1)
	} else if status >= 500 {
		s.errorRequests.Add(1)
	}
}
