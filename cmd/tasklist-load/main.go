// Command tasklist-load sends concurrent traffic to a tasklist server and
// prints status counts and latency percentiles.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/fluxorio/tasklist/pkg/core"
	"github.com/fluxorio/tasklist/pkg/loadgen"
)

func main() {
	defaults := loadgen.DefaultConfig("http://127.0.0.1:5000")

	target := flag.String("target", defaults.BaseURL, "base URL of the tasklist server")
	workers := flag.Int("workers", defaults.Workers, "concurrent clients")
	requests := flag.Int("requests", defaults.Requests, "total requests")
	createRatio := flag.Float64("create-ratio", defaults.CreateRatio, "share of requests that create tasks")
	timeout := flag.Duration("timeout", defaults.Timeout, "per-request timeout")
	jsonOut := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	logger := core.NewLogger(core.LoggerConfig{Level: core.LevelInfo})

	g, err := loadgen.New(loadgen.Config{
		BaseURL:     *target,
		Workers:     *workers,
		Requests:    *requests,
		CreateRatio: *createRatio,
		Timeout:     *timeout,
	}, nil, logger)
	if err != nil {
		log.Fatalf("Invalid load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("sending %d requests to %s with %d workers", *requests, *target, *workers)
	report, err := g.Run(ctx)
	if err != nil {
		logger.Warnf("run ended early: %v", err)
	}

	if *jsonOut {
		data, err := core.JSONEncode(report)
		if err != nil {
			log.Fatalf("encode report: %v", err)
		}
		_, _ = os.Stdout.Write(append(data, '\n'))
		return
	}

	logger.Infof("requests=%d errors=%d elapsed=%s throughput=%.1f/s",
		report.Requests, report.Errors, report.Elapsed, report.Throughput())
	statuses := make([]int, 0, len(report.ByStatus))
	for status := range report.ByStatus {
		statuses = append(statuses, status)
	}
	sort.Ints(statuses)
	for _, status := range statuses {
		logger.Infof("status %d: %d", status, report.ByStatus[status])
	}
	logger.Infof("latency p50=%s p90=%s p99=%s max=%s",
		report.Latency.P50, report.Latency.P90, report.Latency.P99, report.Latency.Max)
}
