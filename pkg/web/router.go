package web

import (
	"sort"
	"strings"
	"sync"

	"github.com/fluxorio/tasklist/pkg/core"
	"github.com/valyala/fasthttp"
)

// FastRequestHandler handles fasthttp requests
type FastRequestHandler func(ctx *FastRequestContext) error

// FastMiddleware is middleware for fasthttp
type FastMiddleware func(handler FastRequestHandler) FastRequestHandler

// Router matches method + path to handlers.
// Path segments starting with ':' are parameters, e.g. "/tasks/:id".
// Middleware registered with Use wraps every request, including 404 and 405 responses.
type Router struct {
	routes     []*route
	middleware []FastMiddleware
	logger     core.Logger
	mu         sync.RWMutex
}

type route struct {
	method  string
	path    string
	parts   []string
	handler FastRequestHandler
}

// NewRouter creates a router that logs handler errors to logger
func NewRouter(logger core.Logger) *Router {
	if logger == nil {
		logger = core.NewDefaultLogger()
	}
	return &Router{
		routes:     make([]*route, 0),
		middleware: make([]FastMiddleware, 0),
		logger:     logger,
	}
}

func (r *Router) GET(path string, handler FastRequestHandler) {
	r.Handle(fasthttp.MethodGet, path, handler)
}

func (r *Router) POST(path string, handler FastRequestHandler) {
	r.Handle(fasthttp.MethodPost, path, handler)
}

func (r *Router) PUT(path string, handler FastRequestHandler) {
	r.Handle(fasthttp.MethodPut, path, handler)
}

func (r *Router) DELETE(path string, handler FastRequestHandler) {
	r.Handle(fasthttp.MethodDelete, path, handler)
}

// Handle registers handler for method and path
// Fail-fast: panics on empty method, relative path or nil handler
func (r *Router) Handle(method, path string, handler FastRequestHandler) {
	if method == "" {
		panic("method cannot be empty")
	}
	if !strings.HasPrefix(path, "/") {
		panic("path must start with '/': " + path)
	}
	if handler == nil {
		panic("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, &route{
		method:  method,
		path:    path,
		parts:   strings.Split(path, "/"),
		handler: handler,
	})
}

// Use appends middleware; the first registered is the outermost
func (r *Router) Use(mw FastMiddleware) {
	if mw == nil {
		panic("middleware cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
}

// ServeFastHTTP dispatches the request
func (r *Router) ServeFastHTTP(ctx *FastRequestContext) {
	r.mu.RLock()
	handler := r.resolve(ctx)
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}
	r.mu.RUnlock()

	if err := handler(ctx); err != nil {
		r.logger.WithContext(ctx.Context()).WithFields(map[string]interface{}{
			"method": string(ctx.Method()),
			"path":   string(ctx.Path()),
		}).Errorf("handler error: %v", err)
		ctx.RequestCtx.ResetBody()
		_ = ctx.ErrorJSON(fasthttp.StatusInternalServerError, "Internal Server Error")
	}
}

// resolve finds the handler for ctx, filling path params.
// A path matched only under other methods yields 405 with an Allow header.
func (r *Router) resolve(ctx *FastRequestContext) FastRequestHandler {
	method := string(ctx.Method())
	pathParts := strings.Split(string(ctx.Path()), "/")

	var allowed []string
	for _, rt := range r.routes {
		if !matchParts(rt.parts, pathParts) {
			continue
		}
		if rt.method == method || (method == fasthttp.MethodHead && rt.method == fasthttp.MethodGet) {
			extractParams(rt.parts, pathParts, ctx.Params)
			ctx.route = rt.path
			return rt.handler
		}
		allowed = append(allowed, rt.method)
	}

	if len(allowed) > 0 {
		sort.Strings(allowed)
		allow := strings.Join(allowed, ", ")
		return func(c *FastRequestContext) error {
			c.RequestCtx.Response.Header.Set("Allow", allow)
			return c.ErrorJSON(fasthttp.StatusMethodNotAllowed, "Method Not Allowed")
		}
	}
	return notFound
}

func notFound(c *FastRequestContext) error {
	return c.ErrorJSON(fasthttp.StatusNotFound, "Not Found")
}

func matchParts(pattern, path []string) bool {
	if len(pattern) != len(path) {
		return false
	}
	for i, part := range pattern {
		if strings.HasPrefix(part, ":") {
			if path[i] == "" {
				return false
			}
			continue
		}
		if part != path[i] {
			return false
		}
	}
	return true
}

func extractParams(pattern, path []string, params map[string]string) {
	for i, part := range pattern {
		if strings.HasPrefix(part, ":") {
			params[strings.TrimPrefix(part, ":")] = path[i]
		}
	}
}
