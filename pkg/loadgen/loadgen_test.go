package loadgen

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fluxorio/tasklist/pkg/core"
	"github.com/fluxorio/tasklist/pkg/web"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func quietLogger() core.Logger {
	return core.NewLogger(core.LoggerConfig{Level: core.LevelError, Output: io.Discard, ErrorOutput: io.Discard})
}

// startTarget serves a fake tasks API with the given capacity and handler delay
func startTarget(t *testing.T, capacity int, delay time.Duration) (*fasthttp.Client, *atomic.Int64) {
	t.Helper()
	created := &atomic.Int64{}

	server := web.NewFastHTTPServer(&web.FastHTTPServerConfig{Addr: "inmemory", Capacity: capacity}, quietLogger())
	router := server.Router()
	router.GET("/tasks", func(c *web.FastRequestContext) error {
		time.Sleep(delay)
		return c.JSON(fasthttp.StatusOK, []int{})
	})
	router.POST("/tasks", func(c *web.FastRequestContext) error {
		time.Sleep(delay)
		created.Add(1)
		return c.JSON(fasthttp.StatusCreated, map[string]int64{"id": created.Load()})
	})

	ln := fasthttputil.NewInmemoryListener()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(ln)
	}()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Stop(ctx)
		_ = ln.Close()
		<-done
	})

	client := &fasthttp.Client{
		Dial: func(string) (net.Conn, error) { return ln.Dial() },
	}
	return client, created
}

func TestConfigValidation(t *testing.T) {
	valid := DefaultConfig("http://127.0.0.1:5000")

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"empty url", func(c *Config) { c.BaseURL = "" }, true},
		{"no scheme", func(c *Config) { c.BaseURL = "127.0.0.1:5000" }, true},
		{"zero workers", func(c *Config) { c.Workers = 0 }, true},
		{"zero requests", func(c *Config) { c.Requests = 0 }, true},
		{"ratio above one", func(c *Config) { c.CreateRatio = 1.5 }, true},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := New(cfg, nil, quietLogger())
			if (err != nil) != tt.wantErr {
				t.Errorf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRun_MixedTraffic(t *testing.T) {
	client, created := startTarget(t, 1000, 0)

	cfg := DefaultConfig("http://tasklist/")
	cfg.Workers = 4
	cfg.Requests = 40
	cfg.CreateRatio = 0.25

	g, err := New(cfg, client, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	report, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if report.Requests != 40 || report.Errors != 0 {
		t.Fatalf("report = %+v", report)
	}
	if report.ByStatus[fasthttp.StatusCreated] != 10 || report.ByStatus[fasthttp.StatusOK] != 30 {
		t.Errorf("ByStatus = %v, want 10x201 and 30x200", report.ByStatus)
	}
	if created.Load() != 10 {
		t.Errorf("server saw %d creates, want 10", created.Load())
	}
	if report.Latency.Max < report.Latency.P50 {
		t.Errorf("latency summary out of order: %+v", report.Latency)
	}
	if report.Throughput() <= 0 {
		t.Errorf("Throughput() = %v", report.Throughput())
	}
}

func TestRun_ObservesBackpressure(t *testing.T) {
	client, _ := startTarget(t, 1, 50*time.Millisecond)

	cfg := DefaultConfig("http://tasklist")
	cfg.Workers = 8
	cfg.Requests = 16
	cfg.CreateRatio = 0

	g, err := New(cfg, client, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	report, err := g.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Rejected() == 0 {
		t.Errorf("no 503 responses with capacity 1 and 8 workers: %v", report.ByStatus)
	}
	if report.ByStatus[fasthttp.StatusOK]+report.Rejected()+report.Errors != 16 {
		t.Errorf("outcomes do not add up: %+v", report)
	}
}

func TestRun_Cancelled(t *testing.T) {
	client, _ := startTarget(t, 1000, 20*time.Millisecond)

	cfg := DefaultConfig("http://tasklist")
	cfg.Workers = 1
	cfg.Requests = 1000

	g, err := New(cfg, client, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	report, err := g.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want deadline exceeded", err)
	}
	if report.Requests >= 1000 {
		t.Errorf("Requests = %d, want an early stop", report.Requests)
	}
}

func TestCreateInterval(t *testing.T) {
	tests := map[float64]int{0: 0, 1: 1, 0.5: 2, 0.25: 4, 0.2: 5, 0.3: 3}
	for ratio, want := range tests {
		if got := createInterval(ratio); got != want {
			t.Errorf("createInterval(%v) = %d, want %d", ratio, got, want)
		}
	}
}

func TestSummarize(t *testing.T) {
	var latencies []time.Duration
	for i := 1; i <= 100; i++ {
		latencies = append(latencies, time.Duration(101-i)*time.Millisecond)
	}
	s := summarize(latencies)
	if s.P50 != 50*time.Millisecond || s.P90 != 90*time.Millisecond || s.P99 != 99*time.Millisecond || s.Max != 100*time.Millisecond {
		t.Errorf("summarize() = %+v", s)
	}
	if (summarize(nil) != LatencySummary{}) {
		t.Error("summarize(nil) not zero")
	}
}

func TestWorkerPool_SubmitAfterDrain(t *testing.T) {
	pool := newWorkerPool(context.Background(), 2, 2)
	pool.start()

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if err := pool.submit(context.Background(), func(context.Context) { ran.Add(1) }); err != nil {
			t.Fatalf("submit() error = %v", err)
		}
	}
	pool.drain()

	if ran.Load() != 5 {
		t.Errorf("ran = %d, want 5", ran.Load())
	}
	if err := pool.submit(context.Background(), func(context.Context) {}); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("submit() after drain error = %v, want ErrPoolStopped", err)
	}
}

func TestNewWorkerPool_InvalidSizes(t *testing.T) {
	tests := []struct {
		name           string
		workers, queue int
	}{
		{"no workers", 0, 1},
		{"negative queue", 1, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("newWorkerPool(%d, %d) should panic", tt.workers, tt.queue)
				}
			}()
			newWorkerPool(context.Background(), tt.workers, tt.queue)
		})
	}
}
