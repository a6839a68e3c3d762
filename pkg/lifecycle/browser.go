package lifecycle

import (
	"context"
	"os/exec"
	"runtime"
	"time"

	"github.com/fluxorio/tasklist/pkg/core"
)

// DefaultBrowserDelay gives the listener time to come up
const DefaultBrowserDelay = time.Second

// Opener opens url in the user's browser
type Opener func(url string) error

// OpenBrowser launches the platform's default URL handler without waiting for it
func OpenBrowser(url string) error {
	name, args := browserCommand(runtime.GOOS, url)
	return exec.Command(name, args...).Start()
}

func browserCommand(goos, url string) (string, []string) {
	switch goos {
	case "darwin":
		return "open", []string{url}
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", url}
	default:
		return "xdg-open", []string{url}
	}
}

// OpenAfter calls open(url) after delay unless ctx ends first.
// It returns immediately; failures are logged.
func OpenAfter(ctx context.Context, delay time.Duration, url string, open Opener, logger core.Logger) {
	if open == nil {
		open = OpenBrowser
	}
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := open(url); err != nil {
			logger.Warnf("open browser at %s: %v", url, err)
			return
		}
		logger.Infof("opened browser at %s", url)
	}()
}

// BrowserURL turns a listen address into a URL a local browser can reach
func BrowserURL(addr string) string {
	host, port := splitHostPort(addr)
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "localhost"
	}
	return "http://" + host + ":" + port
}

func splitHostPort(addr string) (string, string) {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[:i], addr[i+1:]
		}
	}
	return addr, "80"
}
