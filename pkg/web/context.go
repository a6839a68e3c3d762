package web

import (
	"context"
	"fmt"

	"github.com/fluxorio/tasklist/pkg/core"
	"github.com/valyala/fasthttp"
)

// FastRequestContext wraps fasthttp RequestCtx with routing params and a request-scoped context
type FastRequestContext struct {
	RequestCtx *fasthttp.RequestCtx
	Params     map[string]string
	requestID  string // Request ID for tracing
	route      string // Matched route pattern, empty when unmatched
	ctx        context.Context
}

// NewFastRequestContext creates a request context carrying requestID
func NewFastRequestContext(rc *fasthttp.RequestCtx, requestID string) *FastRequestContext {
	return &FastRequestContext{
		RequestCtx: rc,
		Params:     make(map[string]string),
		requestID:  requestID,
		ctx:        core.WithRequestID(context.Background(), requestID),
	}
}

// JSON writes JSON response (default format) - fail-fast
func (c *FastRequestContext) JSON(statusCode int, data interface{}) error {
	// Fail-fast: validate status code
	if statusCode < 100 || statusCode > 599 {
		return fmt.Errorf("invalid status code: %d", statusCode)
	}

	jsonData, err := core.JSONEncode(data)
	if err != nil {
		return fmt.Errorf("json encode error: %w", err)
	}

	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType("application/json")
	c.RequestCtx.SetBody(jsonData)
	return nil
}

// ErrorJSON writes {"error": message, "request_id": id}
func (c *FastRequestContext) ErrorJSON(statusCode int, message string) error {
	return c.JSON(statusCode, ErrorBody{Error: message, RequestID: c.requestID})
}

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Body returns the raw request body
func (c *FastRequestContext) Body() []byte {
	return c.RequestCtx.PostBody()
}

// Blob writes body with the given content type
func (c *FastRequestContext) Blob(statusCode int, contentType string, body []byte) error {
	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType(contentType)
	c.RequestCtx.SetBody(body)
	return nil
}

// Query returns query parameter value
func (c *FastRequestContext) Query(key string) string {
	return string(c.RequestCtx.QueryArgs().Peek(key))
}

// Param returns path parameter value
func (c *FastRequestContext) Param(key string) string {
	return c.Params[key]
}

// Method returns HTTP method
func (c *FastRequestContext) Method() []byte {
	return c.RequestCtx.Method()
}

// Path returns request path
func (c *FastRequestContext) Path() []byte {
	return c.RequestCtx.Path()
}

// Route returns the matched route pattern (e.g. "/tasks/:id"), or "" for 404/405
func (c *FastRequestContext) Route() string {
	return c.route
}

// StatusCode returns the response status written so far
func (c *FastRequestContext) StatusCode() int {
	return c.RequestCtx.Response.StatusCode()
}

// RequestID returns the request ID for this request
func (c *FastRequestContext) RequestID() string {
	return c.requestID
}

// Context returns the request-scoped context (request ID, deadline, span)
func (c *FastRequestContext) Context() context.Context {
	if c.ctx == nil {
		return core.WithRequestID(context.Background(), c.requestID)
	}
	return c.ctx
}

// SetContext replaces the request-scoped context; middleware uses it to add deadlines and spans
func (c *FastRequestContext) SetContext(ctx context.Context) {
	if ctx == nil {
		panic("context cannot be nil")
	}
	c.ctx = ctx
}
