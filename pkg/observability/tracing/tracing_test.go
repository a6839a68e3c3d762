package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/fluxorio/tasklist/pkg/web"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestNew_Exporters(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"none", Config{Exporter: ExporterNone}, false},
		{"empty means none", Config{}, false},
		{"stdout", Config{Exporter: ExporterStdout, Writer: &bytes.Buffer{}}, false},
		{"zipkin", Config{Exporter: ExporterZipkin, ZipkinURL: "http://localhost:9411/api/v2/spans"}, false},
		{"zipkin without url", Config{Exporter: ExporterZipkin}, true},
		{"unknown", Config{Exporter: "jaeger"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(ctx, tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if p.TracerProvider == nil {
				t.Error("TracerProvider is nil")
			}
			if err := p.Shutdown(ctx); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestNew_StdoutWritesSpans(t *testing.T) {
	var out bytes.Buffer
	p, err := New(context.Background(), Config{Exporter: ExporterStdout, Writer: &out})
	if err != nil {
		t.Fatal(err)
	}

	_, span := p.Tracer("test").Start(context.Background(), "task.Create")
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(out.Bytes(), []byte("task.Create")) {
		t.Errorf("stdout exporter output = %q, want span name", out.String())
	}
}

func serve(router *web.Router, method, path string, header map[string]string) {
	rc := &fasthttp.RequestCtx{}
	rc.Request.Header.SetMethod(method)
	rc.Request.SetRequestURI(path)
	for k, v := range header {
		rc.Request.Header.Set(k, v)
	}
	router.ServeFastHTTP(web.NewFastRequestContext(rc, "req-9"))
}

func TestMiddleware(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	p := NewWithSpanProcessor(Config{}, recorder)
	defer p.Shutdown(context.Background())

	router := web.NewRouter(nil)
	router.Use(Middleware(p, propagation.TraceContext{}))

	var handlerSpan trace.SpanContext
	router.GET("/tasks/:id", func(ctx *web.FastRequestContext) error {
		handlerSpan = trace.SpanContextFromContext(ctx.Context())
		return ctx.Blob(200, "text/plain; charset=utf-8", []byte("ok"))
	})
	router.GET("/fail", func(ctx *web.FastRequestContext) error {
		return errors.New("boom")
	})

	serve(router, "GET", "/tasks/7", map[string]string{
		"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	})
	serve(router, "GET", "/fail", nil)

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("ended spans = %d, want 2", len(spans))
	}

	first := spans[0]
	if first.Name() != "GET /tasks/:id" {
		t.Errorf("span name = %q", first.Name())
	}
	if first.SpanKind() != trace.SpanKindServer {
		t.Errorf("span kind = %v", first.SpanKind())
	}
	if got := first.SpanContext().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s, want the incoming one", got)
	}
	if !handlerSpan.IsValid() || handlerSpan.SpanID() != first.SpanContext().SpanID() {
		t.Error("handler context does not carry the server span")
	}

	second := spans[1]
	if second.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", second.Status())
	}
	if len(second.Events()) == 0 {
		t.Error("error was not recorded on the span")
	}
}
