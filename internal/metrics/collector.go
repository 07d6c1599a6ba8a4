package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// SlowThreshold marks successful requests reported as slow.
const SlowThreshold = 5 * time.Second

// Collector records per-request outcomes in a thread-safe manner.
type Collector struct {
	mu         sync.Mutex
	outcomes   []Outcome
	hist       *hdrhistogram.Histogram
	successes  int64
	failures   int64
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration
	slow       int64
	buckets    [BucketCount]int64
	codes      map[int]int64
	classes    map[string]int64
	dropped    int64
	sealed     bool
	summary    Summary
}

// Snapshot is a cheap copy of the running counters.
type Snapshot struct {
	Total       int64
	Successes   int64
	Failures    int64
	MeanLatency time.Duration
	MaxLatency  time.Duration
	Buckets     [BucketCount]int64
	Codes       map[int]int64
	Classes     map[string]int64
}

// Summary is the terminal, read-only result of a run.
type Summary struct {
	RunID          string           `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Mode           string           `json:"mode,omitempty" yaml:"mode,omitempty"`
	Target         string           `json:"target,omitempty" yaml:"target,omitempty"`
	StartedAt      time.Time        `json:"started_at" yaml:"started_at"`
	Elapsed        time.Duration    `json:"-" yaml:"-"`
	ElapsedSeconds float64          `json:"elapsed_seconds" yaml:"elapsed_seconds"`
	Total          int64            `json:"total" yaml:"total"`
	Successful     int64            `json:"successful" yaml:"successful"`
	Failed         int64            `json:"failed" yaml:"failed"`
	SuccessRate    float64          `json:"success_rate" yaml:"success_rate"`
	AchievedRate   float64          `json:"achieved_rate" yaml:"achieved_rate"`
	Latency        *LatencyStats    `json:"latency,omitempty" yaml:"latency,omitempty"`
	Histogram      []Bucket         `json:"duration_histogram" yaml:"duration_histogram"`
	StatusCodes    map[int]int64    `json:"status_codes,omitempty" yaml:"status_codes,omitempty"`
	ErrorClasses   map[string]int64 `json:"error_classes,omitempty" yaml:"error_classes,omitempty"`
	Interrupted    bool             `json:"interrupted,omitempty" yaml:"interrupted,omitempty"`
}

// LatencyStats covers successful outcomes only.
type LatencyStats struct {
	Min       time.Duration `json:"-" yaml:"-"`
	Max       time.Duration `json:"-" yaml:"-"`
	Avg       time.Duration `json:"-" yaml:"-"`
	P50       time.Duration `json:"-" yaml:"-"`
	P90       time.Duration `json:"-" yaml:"-"`
	P99       time.Duration `json:"-" yaml:"-"`
	SlowCount int64         `json:"slow_count" yaml:"slow_count"`

	// JSON-friendly second fields.
	MinSeconds float64 `json:"min_seconds" yaml:"min_seconds"`
	MaxSeconds float64 `json:"max_seconds" yaml:"max_seconds"`
	AvgSeconds float64 `json:"avg_seconds" yaml:"avg_seconds"`
	P50Seconds float64 `json:"p50_seconds" yaml:"p50_seconds"`
	P90Seconds float64 `json:"p90_seconds" yaml:"p90_seconds"`
	P99Seconds float64 `json:"p99_seconds" yaml:"p99_seconds"`
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 10min with 3 significant figures.
	h := hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
	return &Collector{
		hist:    h,
		codes:   make(map[int]int64),
		classes: make(map[string]int64),
	}
}

// Record appends one outcome. Outcomes arriving after the collector has been
// summarized are dropped.
func (c *Collector) Record(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		c.dropped++
		return
	}
	c.outcomes = append(c.outcomes, o)

	if o.HasStatus() {
		c.codes[o.StatusCode]++
	} else {
		class := o.Error
		if class == "" {
			class = string(ErrorClassOther)
		}
		c.classes[class]++
	}

	latency := o.Duration
	c.buckets[BucketFor(latency)]++

	if !o.Success {
		c.failures++
		return
	}

	c.successes++
	us := latency.Microseconds()
	if us < c.hist.LowestTrackableValue() {
		us = c.hist.LowestTrackableValue()
	}
	if us > c.hist.HighestTrackableValue() {
		us = c.hist.HighestTrackableValue()
	}
	_ = c.hist.RecordValue(us)

	c.sumLatency += latency
	if c.successes == 1 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}
	if latency > SlowThreshold {
		c.slow++
	}
}

// Snapshot returns the running counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Total:      c.successes + c.failures,
		Successes:  c.successes,
		Failures:   c.failures,
		MaxLatency: c.maxLatency,
		Buckets:    c.buckets,
		Codes:      make(map[int]int64, len(c.codes)),
		Classes:    make(map[string]int64, len(c.classes)),
	}
	if c.successes > 0 {
		s.MeanLatency = time.Duration(int64(c.sumLatency) / c.successes)
	}
	for k, v := range c.codes {
		s.Codes[k] = v
	}
	for k, v := range c.classes {
		s.Classes[k] = v
	}
	return s
}

// Summarize computes the run summary over [start, end]. It must only be called
// once no request is in flight; the first call seals the collector.
func (c *Collector) Summarize(start, end time.Time) Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sealed {
		return c.summary
	}
	c.sealed = true

	total := c.successes + c.failures
	elapsed := end.Sub(start)
	if elapsed < 0 {
		elapsed = 0
	}

	s := Summary{
		StartedAt:      start,
		Elapsed:        elapsed,
		ElapsedSeconds: elapsed.Seconds(),
		Total:          total,
		Successful:     c.successes,
		Failed:         c.failures,
		Histogram:      newBuckets(c.buckets),
	}
	if total > 0 {
		s.SuccessRate = float64(c.successes) / float64(total)
	}
	if elapsed > 0 {
		s.AchievedRate = float64(total) / elapsed.Seconds()
	}

	if c.successes > 0 {
		lat := &LatencyStats{
			Min:       c.minLatency,
			Max:       c.maxLatency,
			Avg:       time.Duration(int64(c.sumLatency) / c.successes),
			P50:       time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond,
			P90:       time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond,
			P99:       time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond,
			SlowCount: c.slow,
		}
		lat.MinSeconds = lat.Min.Seconds()
		lat.MaxSeconds = lat.Max.Seconds()
		lat.AvgSeconds = lat.Avg.Seconds()
		lat.P50Seconds = lat.P50.Seconds()
		lat.P90Seconds = lat.P90.Seconds()
		lat.P99Seconds = lat.P99.Seconds()
		s.Latency = lat
	}

	if len(c.codes) > 0 {
		s.StatusCodes = make(map[int]int64, len(c.codes))
		for k, v := range c.codes {
			s.StatusCodes[k] = v
		}
	}
	if len(c.classes) > 0 {
		s.ErrorClasses = make(map[string]int64, len(c.classes))
		for k, v := range c.classes {
			s.ErrorClasses[k] = v
		}
	}

	c.summary = s
	return s
}

// Outcomes returns a copy of the recorded outcomes ordered by sequence.
func (c *Collector) Outcomes() []Outcome {
	c.mu.Lock()
	out := make([]Outcome, len(c.outcomes))
	copy(out, c.outcomes)
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// Dropped reports how many outcomes arrived after the collector was sealed.
func (c *Collector) Dropped() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}
