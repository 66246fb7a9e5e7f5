package otel

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/propagation"

	"github.com/dotcloud/go-client/pkg/client"
)

type config struct {
	propagators         propagation.TextMapPropagator
	traceIDHeader       string
	redactedQueryParams map[string]struct{}
	redactedHeaders     map[string]struct{}
}

type Option func(*config)

// WithPropagators injects the trace context to headers of each HTTP request.
func WithPropagators(v propagation.TextMapPropagator) Option {
	return func(c *config) {
		c.propagators = v
	}
}

// WithTraceIDHeader sets the response header with the API trace ID, default is client.TraceIDHeader.
func WithTraceIDHeader(header string) Option {
	return func(c *config) {
		c.traceIDHeader = http.CanonicalHeaderKey(header)
	}
}

func WithRedactedQueryParam(params ...string) Option {
	return func(c *config) {
		for _, p := range params {
			c.redactedQueryParams[strings.ToLower(p)] = struct{}{}
		}
	}
}

func WithRedactedHeaders(headers ...string) Option {
	return func(c *config) {
		for _, h := range headers {
			c.redactedHeaders[strings.ToLower(h)] = struct{}{}
		}
	}
}

func newConfig(opts []Option) config {
	cfg := config{
		traceIDHeader:       client.TraceIDHeader,
		redactedQueryParams: make(map[string]struct{}),
		// Same as in the otelhttptrace
		redactedHeaders: map[string]struct{}{
			"authorization":       {},
			"www-authenticate":    {},
			"proxy-authenticate":  {},
			"proxy-authorization": {},
			"cookie":              {},
			"set-cookie":          {},
		},
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}
