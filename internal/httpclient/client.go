package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RequestSpec describes the single request a run sends over and over.
type RequestSpec struct {
	Method   string
	Target   string
	Headers  map[string]string
	Body     string
	BodyFile string
}

type RequestBuilder struct {
	method  string
	target  string
	headers http.Header
	body    *Body
}

func NewRequestBuilder(spec RequestSpec) (*RequestBuilder, error) {
	target := strings.TrimSpace(spec.Target)
	if target == "" {
		return nil, errors.New("target URL is required")
	}
	if err := ValidateTarget(target); err != nil {
		return nil, err
	}

	method := strings.TrimSpace(spec.Method)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	body, err := LoadBody(spec.Body, spec.BodyFile)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	for key, value := range spec.Headers {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		if strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)

		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}

		headers.Set(canonicalKey, value)
	}

	// Form-encoded by default when a body is sent without an explicit type,
	// matching what the relay endpoints expect.
	if !body.Empty() && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	return &RequestBuilder{
		method:  method,
		target:  target,
		headers: headers,
		body:    body,
	}, nil
}

// Method returns the HTTP method requests are built with.
func (b *RequestBuilder) Method() string { return b.method }

// Target returns the request URL.
func (b *RequestBuilder) Target() string { return b.target }

func (b *RequestBuilder) Build(ctx context.Context) (*http.Request, error) {
	if b == nil {
		return nil, errors.New("builder cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	reader, err := b.body.open()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, b.method, b.target, reader)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	req.Header = b.headers.Clone()
	req.ContentLength = b.body.Len()
	if !b.body.Empty() {
		req.GetBody = b.body.open
	}

	return req, nil
}

// ValidateTarget reports whether target is an absolute http(s) URL with a host.
func ValidateTarget(target string) error {
	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid target URL %q: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid target URL %q: scheme must be http or https", target)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid target URL %q: missing host", target)
	}
	return nil
}

// NewClient returns a client tuned for load generation. When keepAlive is
// false every request dials a fresh connection.
func NewClient(timeout time.Duration, keepAlive bool) *http.Client {
	if timeout < 0 {
		timeout = 0
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   256,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		DisableKeepAlives:     !keepAlive,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
