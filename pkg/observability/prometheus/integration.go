package prometheus

import (
	"database/sql"
	"time"

	"github.com/fluxorio/tasklist/pkg/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// FastHTTPMetricsMiddleware creates middleware that records HTTP metrics.
// The path label is the matched route pattern so /tasks/1 and /tasks/2 share a series.
func FastHTTPMetricsMiddleware(m *Metrics) web.FastMiddleware {
	if m == nil {
		m = GetMetrics()
	}
	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			start := time.Now()
			requestSize := int64(len(ctx.RequestCtx.PostBody()))

			err := next(ctx)

			status := ctx.StatusCode()
			if err != nil && status < 500 {
				status = 500
			}
			path := ctx.Route()
			if path == "" {
				path = "unmatched"
			}
			responseSize := int64(len(ctx.RequestCtx.Response.Body()))

			m.RecordHTTPRequest(string(ctx.Method()), path, statusCodeString(status), time.Since(start), requestSize, responseSize)
			return err
		}
	}
}

// RegisterMetricsEndpoint serves the gatherer in Prometheus text format at path
func RegisterMetricsEndpoint(router *web.Router, path string, gatherer prometheus.Gatherer) {
	if gatherer == nil {
		gatherer = DefaultRegistry
	}
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.GET(path, func(ctx *web.FastRequestContext) error {
		handler(ctx.RequestCtx)
		return nil
	})
}

// RegisterDatabasePool exports sql.DBStats of db under tasklist's registerer
func RegisterDatabasePool(registerer prometheus.Registerer, db *sql.DB, name string) error {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	return registerer.Register(collectors.NewDBStatsCollector(db, name))
}

// RegisterServerMetrics exports FastHTTPServer load as gauges read at scrape time
func RegisterServerMetrics(registerer prometheus.Registerer, server *web.FastHTTPServer) {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	factory := promauto.With(registerer)

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tasklist_server_in_flight_requests",
		Help: "Requests currently being served",
	}, func() float64 { return float64(server.Metrics().InFlight) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tasklist_server_capacity",
		Help: "Concurrent requests admitted before backpressure applies",
	}, func() float64 { return float64(server.Metrics().Capacity) })
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "tasklist_server_utilization",
		Help: "In-flight requests relative to capacity, in percent",
	}, func() float64 { return server.Metrics().Utilization })
	factory.NewCounterFunc(prometheus.CounterOpts{
		Name: "tasklist_server_rejected_requests_total",
		Help: "Total number of requests rejected with 503",
	}, func() float64 { return float64(server.Metrics().RejectedRequests) })
}

// statusCodeString converts status code to string
func statusCodeString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
