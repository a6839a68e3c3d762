// Package ui serves the embedded browser front end.
package ui

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"github.com/fluxorio/tasklist/pkg/web"
	"github.com/valyala/fasthttp"
)

//go:embed assets
var assets embed.FS

// Asset paths served under /static/
var staticAssets = map[string]string{
	"script.js": "text/javascript; charset=utf-8",
	"style.css": "text/css; charset=utf-8",
}

// RegisterRoutes mounts GET / and the /static/ assets on router.
// Fail-fast: panics if an embedded asset is missing.
func RegisterRoutes(router *web.Router) {
	router.GET("/", page("index.html", "text/html; charset=utf-8"))
	for name, contentType := range staticAssets {
		router.GET("/static/"+name, page(name, contentType))
	}
}

// Asset returns an embedded file by name
func Asset(name string) ([]byte, error) {
	return fs.ReadFile(assets, path.Join("assets", name))
}

func page(name, contentType string) web.FastRequestHandler {
	body, err := Asset(name)
	if err != nil {
		panic(fmt.Sprintf("ui: missing asset %s: %v", name, err))
	}
	return func(c *web.FastRequestContext) error {
		c.RequestCtx.Response.Header.Set("Cache-Control", "no-cache")
		return c.Blob(fasthttp.StatusOK, contentType, body)
	}
}
