package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/relayload/internal/tracing"
)

// Requester performs one HTTP request/response exchange per Do call. The
// response body is drained and discarded so the connection can be reused.
type Requester struct {
	client    *http.Client
	builder   *RequestBuilder
	tracer    trace.Tracer
	propagate bool
}

// Option configures a Requester.
type Option func(*Requester)

// WithTracer wraps every exchange in a client span. When propagate is set the
// W3C trace context is injected into the outgoing headers.
func WithTracer(tracer trace.Tracer, propagate bool) Option {
	return func(r *Requester) {
		r.tracer = tracer
		r.propagate = propagate
	}
}

func NewRequester(client *http.Client, builder *RequestBuilder, opts ...Option) *Requester {
	if client == nil {
		client = http.DefaultClient
	}
	r := &Requester{client: client, builder: builder}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do sends the request. It returns the received status code, or zero and the
// transport error when no response arrived.
func (r *Requester) Do(ctx context.Context) (int, error) {
	if r.builder == nil {
		return 0, errors.New("request builder is not configured")
	}

	var span trace.Span
	if r.tracer != nil {
		ctx, span = tracing.StartRequestSpan(ctx, r.tracer, r.builder.Method(), r.builder.Target())
	}

	req, err := r.builder.Build(ctx)
	if err != nil {
		endSpan(span, err)
		return 0, err
	}
	if r.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		endSpan(span, err)
		return 0, err
	}
	defer resp.Body.Close()

	// Body content is opaque to the generator.
	_, _ = io.Copy(io.Discard, resp.Body)

	endSpan(span, nil, attribute.Int("http.response.status_code", resp.StatusCode))
	return resp.StatusCode, nil
}

func endSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	tracing.EndSpan(span, err, attrs...)
}
