// Package httpclient builds and sends the HTTP requests a relayload run issues.
//
// # Request Building
//
// Use [NewRequestBuilder] to turn a [RequestSpec] into a reusable builder:
//
//	builder, err := httpclient.NewRequestBuilder(httpclient.RequestSpec{
//		Method: "POST",
//		Target: "http://localhost:5000/call-tornado",
//		Body:   "endpoint=/",
//	})
//	req, err := builder.Build(ctx)
//
// # Exchanges
//
// [Requester] sends one request per Do call and returns the status code or the
// transport error. Bodies are drained and discarded; their content is never
// interpreted. [WithTracer] wraps each exchange in an OpenTelemetry span.
//
// # HTTP Client
//
// [NewClient] creates an HTTP/1.1 client with a per-request timeout and
// optional connection reuse:
//
//	client := httpclient.NewClient(60*time.Second, true)
package httpclient
