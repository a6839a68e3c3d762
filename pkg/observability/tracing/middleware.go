package tracing

import (
	"fmt"

	"github.com/fluxorio/tasklist/pkg/web"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/fluxorio/tasklist/pkg/observability/tracing"

// headerCarrier adapts fasthttp request headers to propagation.TextMapCarrier
type headerCarrier struct {
	header *fasthttp.RequestHeader
}

func (c headerCarrier) Get(key string) string {
	return string(c.header.Peek(key))
}

func (c headerCarrier) Set(key, value string) {
	c.header.Set(key, value)
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0)
	c.header.VisitAll(func(key, _ []byte) {
		keys = append(keys, string(key))
	})
	return keys
}

// Middleware starts a server span per request, continuing any incoming trace context.
// The span is placed in the request context so storage spans become its children.
func Middleware(tp trace.TracerProvider, propagator propagation.TextMapPropagator) web.FastMiddleware {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	tracer := tp.Tracer(instrumentationName)

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			parent := ctx.Context()
			method := string(ctx.Method())

			spanCtx := propagator.Extract(parent, headerCarrier{header: &ctx.RequestCtx.Request.Header})
			spanCtx, span := tracer.Start(spanCtx, method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", method),
					attribute.String("url.path", string(ctx.Path())),
					attribute.String("request.id", ctx.RequestID()),
				),
			)
			defer span.End()

			ctx.SetContext(spanCtx)
			defer ctx.SetContext(parent)

			err := next(ctx)

			status := ctx.StatusCode()
			if err != nil && status < 500 {
				status = 500
			}
			if route := ctx.Route(); route != "" {
				span.SetName(method + " " + route)
				span.SetAttributes(attribute.String("http.route", route))
			}
			span.SetAttributes(attribute.Int("http.response.status_code", status))
			if status >= 500 {
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
			}
			if err != nil {
				span.RecordError(err)
			}
			return err
		}
	}
}
