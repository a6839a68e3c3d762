package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fluxorio/tasklist/pkg/config"
	"github.com/fluxorio/tasklist/pkg/core"
	"github.com/fluxorio/tasklist/pkg/db"
	"github.com/fluxorio/tasklist/pkg/events"
	"github.com/fluxorio/tasklist/pkg/lifecycle"
	metrics "github.com/fluxorio/tasklist/pkg/observability/prometheus"
	"github.com/fluxorio/tasklist/pkg/observability/tracing"
	"github.com/fluxorio/tasklist/pkg/task"
	"github.com/fluxorio/tasklist/pkg/ui"
	"github.com/fluxorio/tasklist/pkg/web"
	"github.com/fluxorio/tasklist/pkg/web/middleware"
	"github.com/fluxorio/tasklist/pkg/web/middleware/security"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

const (
	serviceName           = "tasklist"
	defaultRequestTimeout = 10 * time.Second

	// broker publishes are skipped for brokerCooldown after this many consecutive failures
	brokerFailureThreshold = 5
	brokerCooldown         = 30 * time.Second
)

// app owns every long-lived resource; close releases them in reverse order
type app struct {
	cfg       config.AppConfig
	logger    core.Logger
	logFile   *os.File
	tracer    *tracing.Provider
	pool      *db.Pool
	store     *task.Store
	publisher events.Publisher
	server    *web.FastHTTPServer
}

// appOptions are the process-level dependencies, replaced in tests
type appOptions struct {
	stdout    io.Writer
	stderr    io.Writer
	registry  *prometheus.Registry
	signaller lifecycle.Signaller
}

func newApp(ctx context.Context, cfg config.AppConfig, opts appOptions) (a *app, err error) {
	if opts.stdout == nil {
		opts.stdout = os.Stdout
	}
	if opts.stderr == nil {
		opts.stderr = os.Stderr
	}
	if opts.registry == nil {
		opts.registry = metrics.DefaultRegistry
	}
	registerer := prometheus.WrapRegistererWith(prometheus.Labels{"service": serviceName}, opts.registry)

	a = &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.logger, a.logFile, err = newLogger(cfg.Log, opts.stdout, opts.stderr)
	if err != nil {
		return a, err
	}

	a.tracer, err = tracing.Setup(ctx, tracing.Config{
		ServiceName: serviceName,
		Exporter:    cfg.Tracing.Exporter,
		ZipkinURL:   cfg.Tracing.ZipkinURL,
		SampleRatio: cfg.Tracing.SampleRatio,
		Writer:      opts.stdout,
	})
	if err != nil {
		return a, fmt.Errorf("setup tracing: %w", err)
	}

	a.pool, err = db.NewPool(ctx, poolConfig(cfg.Database))
	if err != nil {
		return a, fmt.Errorf("open %s database: %w", cfg.Database.Driver, err)
	}
	if err = db.EnsureSchema(ctx, a.pool); err != nil {
		return a, err
	}
	if err = metrics.RegisterDatabasePool(registerer, a.pool.DB(), cfg.Database.Driver); err != nil {
		return a, fmt.Errorf("register pool metrics: %w", err)
	}

	m := metrics.NewMetrics(registerer)

	var sinks []events.Publisher
	if cfg.Events.NATSURL != "" {
		nats, err := events.NewNATSPublisher(events.NATSConfig{
			URL:    cfg.Events.NATSURL,
			Prefix: cfg.Events.SubjectPrefix,
			Name:   serviceName,
		})
		if err != nil {
			return a, fmt.Errorf("connect events broker: %w", err)
		}
		sinks = append(sinks, events.Guard(nats, brokerFailureThreshold, brokerCooldown))
		a.logger.Infof("publishing task events to %s", cfg.Events.NATSURL)
	}
	if cfg.Events.JournalFile != "" {
		journal, err := events.OpenJournal(events.JournalConfig{
			Path:  cfg.Events.JournalFile,
			Fsync: cfg.Events.JournalFsync,
		})
		if err != nil {
			_ = events.Multi(sinks...).Close()
			return a, fmt.Errorf("open events journal: %w", err)
		}
		sinks = append(sinks, journal)
		a.logger.Infof("journaling task events to %s (last offset %d)", cfg.Events.JournalFile, journal.LastOffset())
	}
	a.publisher = events.Instrumented(events.Multi(sinks...), m)

	a.store = task.NewStore(a.pool,
		task.WithTracerProvider(a.tracer),
		task.WithRecorder(m),
	)

	serverConfig := web.CCUBasedConfigWithUtilization(cfg.Server.Addr, cfg.Server.MaxCCU, cfg.Server.UtilizationPercent)
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout.Duration
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout.Duration
	a.server = web.NewFastHTTPServer(serverConfig, a.logger)
	metrics.RegisterServerMetrics(registerer, a.server)

	router := a.server.Router()
	router.Use(middleware.AccessLog(a.logger))
	recoveryConfig := middleware.DefaultRecoveryConfig()
	recoveryConfig.Logger = a.logger
	router.Use(middleware.Recovery(recoveryConfig))
	router.Use(security.Headers(security.DefaultHeadersConfig()))
	router.Use(metrics.FastHTTPMetricsMiddleware(m))
	router.Use(tracing.Middleware(a.tracer, otel.GetTextMapPropagator()))
	requestTimeout := cfg.Server.WriteTimeout.Duration
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	timeoutConfig := middleware.DefaultTimeoutConfig(requestTimeout)
	timeoutConfig.SkipPaths = append(timeoutConfig.SkipPaths, "/metrics")
	router.Use(middleware.Timeout(timeoutConfig))

	ui.RegisterRoutes(router)
	task.NewHandler(a.store, a.publisher, a.logger).RegisterRoutes(router)
	lifecycle.NewShutdownHandler(a.logger, lifecycle.WithSignaller(opts.signaller)).RegisterRoutes(router)
	lifecycle.RegisterHealth(router, lifecycle.HealthConfig{
		DB:     a.pool,
		Tasks:  a.store,
		Server: a.server,
		Logger: a.logger,
	})
	metrics.RegisterMetricsEndpoint(router, "/metrics", opts.registry)

	return a, nil
}

// close releases resources; ctx bounds span flushing
func (a *app) close(ctx context.Context) {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warnf("close events publisher: %v", err)
		}
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			a.logger.Warnf("close database: %v", err)
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			a.logger.Warnf("shutdown tracer: %v", err)
		}
	}
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// poolConfig maps database settings onto db.PoolConfig.
// SQLite keeps the single-connection defaults whatever the file says.
func poolConfig(cfg config.DatabaseConfig) db.PoolConfig {
	pc := db.DefaultPoolConfig(cfg.DSN, cfg.Driver)
	if cfg.Driver == db.DriverSQLite {
		return pc
	}
	if cfg.MaxOpenConns > 0 {
		pc.MaxOpenConns = cfg.MaxOpenConns
	}
	pc.MaxIdleConns = cfg.MaxIdleConns
	if pc.MaxIdleConns > pc.MaxOpenConns {
		pc.MaxIdleConns = pc.MaxOpenConns
	}
	pc.ConnMaxLifetime = cfg.ConnMaxLifetime.Duration
	pc.ConnMaxIdleTime = cfg.ConnMaxIdleTime.Duration
	return pc
}

// newLogger builds the process logger; with a log file every line also goes to the file
func newLogger(cfg config.LogConfig, stdout, stderr io.Writer) (core.Logger, *os.File, error) {
	level, err := core.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var file *os.File
	if cfg.File != "" {
		file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		stdout = io.MultiWriter(stdout, file)
		stderr = io.MultiWriter(stderr, file)
	}

	logger := core.NewLogger(core.LoggerConfig{
		Level:       level,
		Output:      stdout,
		ErrorOutput: stderr,
		JSON:        cfg.JSON,
	})
	return logger, file, nil
}
