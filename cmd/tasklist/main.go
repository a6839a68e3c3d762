// Command tasklist serves the task list web application.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxorio/tasklist/pkg/config"
	"github.com/fluxorio/tasklist/pkg/lifecycle"
)

// shutdownTimeout bounds listener shutdown and span flushing at exit
const shutdownTimeout = 2 * time.Second

func main() {
	configPath := flag.String("config", "tasklist.yaml", "config file (.yaml, .yml, .json or .toml); missing file means defaults")
	flag.Parse()

	cfg, err := config.LoadApp(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// POST /shutdown delivers os.Interrupt, which ends up here as well
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, appOptions{}); err != nil {
		log.Fatalf("tasklist: %v", err)
	}
}

// run serves until ctx is cancelled or the listener fails
func run(ctx context.Context, cfg config.AppConfig, opts appOptions) error {
	a, err := newApp(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.close(closeCtx)
	}()

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.Serve(ln)
	}()

	url := lifecycle.BrowserURL(ln.Addr().String())
	a.logger.Infof("tasklist ready at %s (driver %s)", url, cfg.Database.Driver)
	if cfg.OpenBrowser {
		lifecycle.OpenAfter(ctx, lifecycle.DefaultBrowserDelay, url, lifecycle.OpenBrowser, a.logger)
	}

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.server.Stop(stopCtx); err != nil {
		a.logger.Warnf("stop HTTP server: %v", err)
	}
	// Serve may not have registered yet; closing the listener unblocks it either way
	if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		a.logger.Debugf("close listener: %v", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, net.ErrClosed) {
		a.logger.Warnf("serve: %v", err)
	}
	a.logger.Info("stopped")
	return nil
}
