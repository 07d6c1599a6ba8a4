package config

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"
)

// EndpointType selects which relay path of the demo service is exercised.
type EndpointType string

const (
	EndpointSync  EndpointType = "sync"
	EndpointAsync EndpointType = "async"
)

// Path returns the relay route for the endpoint type.
func (e EndpointType) Path() string {
	switch e {
	case EndpointSync:
		return "/call-tornado"
	case EndpointAsync:
		return "/call-tornado-async"
	default:
		return ""
	}
}

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

const (
	DefaultDirectAddr   = "localhost:5000"
	DefaultProxyAddr    = "localhost:80"
	DefaultMethod       = "POST"
	DefaultBody         = "endpoint=/"
	DefaultTimeout      = 60 * time.Second
	DefaultTick         = 100 * time.Millisecond
	DefaultMaxBatch     = 50
	DefaultDrain        = 5 * time.Second
	DefaultConfirmAbove = 1000
)

type Config struct {
	Endpoint     EndpointType
	Count        int
	Duration     time.Duration
	ViaProxy     bool
	DirectAddr   string
	ProxyAddr    string
	Method       string
	Headers      map[string]string
	Body         string
	BodyFile     string
	Timeout      time.Duration
	Tick         time.Duration
	MaxBatch     int
	MaxInFlight  int
	Drain        time.Duration
	NoKeepAlive  bool
	Output       OutputFormat
	Quiet        bool
	LogErrors    bool
	Dashboard    bool
	AssumeYes    bool
	ConfirmAbove int
	ConfigFile   string
	Tracing      TracingConfig
}

// TracingConfig holds the OTLP exporter settings. An empty Endpoint leaves
// tracing off unless OTEL_EXPORTER_OTLP_ENDPOINT is set.
type TracingConfig struct {
	Endpoint    string
	Protocol    string
	ServiceName string
	SampleRate  float64
	Insecure    bool
	Propagate   *bool
}

func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate defaults to Enabled unless explicitly set.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// Default returns a Config populated with the relayload defaults.
func Default() Config {
	return Config{
		DirectAddr:   DefaultDirectAddr,
		ProxyAddr:    DefaultProxyAddr,
		Method:       DefaultMethod,
		Headers:      map[string]string{},
		Body:         DefaultBody,
		Timeout:      DefaultTimeout,
		Tick:         DefaultTick,
		MaxBatch:     DefaultMaxBatch,
		Drain:        DefaultDrain,
		Output:       OutputText,
		ConfirmAbove: DefaultConfirmAbove,
		Tracing:      TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}
}

// Sustained reports whether a duration was given.
func (c Config) Sustained() bool {
	return c.Duration > 0
}

// BaseAddr is the host:port (or base URL) requests are sent to.
func (c Config) BaseAddr() string {
	if c.ViaProxy {
		return c.ProxyAddr
	}
	return c.DirectAddr
}

// TargetURL joins the base address with the relay path of the endpoint type.
func (c Config) TargetURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseAddr()), "/")
	if base == "" {
		return ""
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return base + c.Endpoint.Path()
}

// BatchSize is the number of requests issued per tick in sustained mode.
func (c Config) BatchSize() int {
	if c.MaxBatch > 0 && c.Count > c.MaxBatch {
		return c.MaxBatch
	}
	return c.Count
}

// PlannedRequests is the number of requests the run will issue if nothing
// interrupts it.
func (c Config) PlannedRequests() int {
	if !c.Sustained() {
		return c.Count
	}
	if c.Tick <= 0 {
		return 0
	}
	ticks := int(math.Ceil(float64(c.Duration) / float64(c.Tick)))
	return ticks * c.BatchSize()
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	switch c.Endpoint {
	case EndpointSync, EndpointAsync:
	case "":
		issues = append(issues, "endpoint type is required: 'sync' or 'async' (use --help for usage information)")
	default:
		issues = append(issues, fmt.Sprintf("endpoint type must be 'sync' or 'async', got %q", c.Endpoint))
	}

	if c.Count <= 0 {
		issues = append(issues, "count must be a positive integer")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be positive when provided")
	}

	if c.Endpoint.Path() != "" {
		if u, err := url.Parse(c.TargetURL()); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			issues = append(issues, fmt.Sprintf("target %q is not an absolute http(s) URL", c.TargetURL()))
		}
	}

	switch strings.ToUpper(c.Method) {
	case "GET", "POST":
	default:
		issues = append(issues, fmt.Sprintf("method must be GET or POST, got %q", c.Method))
	}

	if c.Body != "" && strings.TrimSpace(c.BodyFile) != "" {
		issues = append(issues, "body and body file cannot both be provided")
	}

	if c.Timeout < 0 {
		issues = append(issues, "timeout must be non-negative")
	}
	if c.Tick <= 0 {
		issues = append(issues, "tick must be positive")
	}
	if c.MaxBatch < 0 {
		issues = append(issues, "max batch must be non-negative")
	}
	if c.MaxInFlight < 0 {
		issues = append(issues, "max in-flight must be non-negative")
	}
	if c.ConfirmAbove < 0 {
		issues = append(issues, "confirm threshold must be non-negative")
	}

	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output must be text, json or yaml, got %q", c.Output))
	}
	if c.Dashboard && c.Output != OutputText {
		issues = append(issues, "dashboard cannot be combined with json or yaml output")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, "tracing sample rate must be between 0.0 and 1.0")
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol must be grpc or http, got %q", c.Tracing.Protocol))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
