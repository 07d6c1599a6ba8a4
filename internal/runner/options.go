package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/relayload/internal/httpclient"
	"github.com/torosent/relayload/internal/metrics"
)

// Mode selects the issuance policy.
type Mode string

const (
	// ModeBurst issues Concurrency requests at once.
	ModeBurst Mode = "burst"
	// ModeSustained issues a batch every TickInterval until Duration elapses.
	ModeSustained Mode = "sustained"
)

const (
	DefaultTickInterval = 100 * time.Millisecond
	DefaultDrainGrace   = 5 * time.Second
)

// Requester performs a single request/response exchange. It returns the
// received status code, or an error when no response arrived.
type Requester interface {
	Do(ctx context.Context) (int, error)
}

// Config describes one run.
type Config struct {
	TargetURL string
	Method    string
	Headers   map[string]string
	Body      string
	BodyFile  string

	Mode        Mode
	Concurrency int           // burst size, or requests per tick in sustained mode
	Duration    time.Duration // sustained mode only

	RequestTimeout time.Duration // 0 disables the per-request timeout
	TickInterval   time.Duration // 0 means DefaultTickInterval
	MaxBatch       int           // per-tick cap, 0 = no cap
	MaxInFlight    int           // 0 = unbounded
	DrainGrace     time.Duration // 0 means DefaultDrainGrace, negative cancels immediately

	DisableKeepAlives bool
}

// Options configure a run.
type Options struct {
	Config Config

	// Requester overrides the HTTP requester built from Config.
	Requester Requester
	// HTTPOptions are applied to the default HTTP requester.
	HTTPOptions []httpclient.Option
	// Collector receives every outcome and produces the summary. A fresh one
	// is created when nil.
	Collector *metrics.Collector
	// Recorder observes outcomes in addition to the collector.
	Recorder Recorder
	// LimiterFactory builds the sustained-mode tick limiter; injectable for tests.
	LimiterFactory func(every time.Duration) *rate.Limiter
}

// ConfigError lists every problem found in a Config.
type ConfigError struct {
	Issues []string
}

func (e *ConfigError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid run config"
	}
	return fmt.Sprintf("invalid run config: %s", strings.Join(e.Issues, "; "))
}

// Validate reports a *ConfigError for an unusable Config.
func (c Config) Validate() error {
	var issues []string

	if err := httpclient.ValidateTarget(c.TargetURL); err != nil {
		issues = append(issues, err.Error())
	}
	if c.Concurrency <= 0 {
		issues = append(issues, fmt.Sprintf("concurrency must be positive, got %d", c.Concurrency))
	}
	switch c.Mode {
	case ModeBurst:
	case ModeSustained:
		if c.Duration <= 0 {
			issues = append(issues, "sustained mode requires a positive duration")
		}
	default:
		issues = append(issues, fmt.Sprintf("unknown mode %q", c.Mode))
	}
	if c.RequestTimeout < 0 {
		issues = append(issues, "request timeout must be non-negative")
	}
	if c.TickInterval < 0 {
		issues = append(issues, "tick interval must be non-negative")
	}
	if c.MaxBatch < 0 {
		issues = append(issues, "max batch must be non-negative")
	}
	if c.MaxInFlight < 0 {
		issues = append(issues, "max in-flight must be non-negative")
	}

	if len(issues) > 0 {
		return &ConfigError{Issues: issues}
	}
	return nil
}

// BatchSize is the number of requests issued per sustained tick.
func (c Config) BatchSize() int {
	if c.MaxBatch > 0 && c.Concurrency > c.MaxBatch {
		return c.MaxBatch
	}
	return c.Concurrency
}

func (c *Config) normalize() {
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.DrainGrace == 0 {
		c.DrainGrace = DefaultDrainGrace
	}
}

func (o *Options) normalize() {
	o.Config.normalize()
	if o.Collector == nil {
		o.Collector = metrics.NewCollector()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(every time.Duration) *rate.Limiter {
			// One token per tick, no accumulation across slow ticks.
			return rate.NewLimiter(rate.Every(every), 1)
		}
	}
}

func (o Options) requester() (Requester, error) {
	if o.Requester != nil {
		return o.Requester, nil
	}
	builder, err := httpclient.NewRequestBuilder(httpclient.RequestSpec{
		Method:   o.Config.Method,
		Target:   o.Config.TargetURL,
		Headers:  o.Config.Headers,
		Body:     o.Config.Body,
		BodyFile: o.Config.BodyFile,
	})
	if err != nil {
		return nil, &ConfigError{Issues: []string{err.Error()}}
	}
	client := httpclient.NewClient(o.Config.RequestTimeout, !o.Config.DisableKeepAlives)
	return httpclient.NewRequester(client, builder, o.HTTPOptions...), nil
}
