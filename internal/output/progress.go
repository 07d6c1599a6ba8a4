package output

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/relayload/internal/metrics"
)

// FormatOutcome renders one completed request the way the progress stream
// prints it.
func FormatOutcome(o metrics.Outcome) string {
	if o.HasStatus() {
		return fmt.Sprintf("Request %4d: %d in %.2fs (at T+%.1fs)",
			o.Sequence, o.StatusCode, o.Duration.Seconds(), o.Offset.Seconds())
	}
	return fmt.Sprintf("Request %4d: FAILED (%s) after %.2fs (at T+%.1fs)",
		o.Sequence, o.Error, o.Duration.Seconds(), o.Offset.Seconds())
}

// RequestPrinter writes one line per completed request. It satisfies
// runner.Recorder.
type RequestPrinter struct {
	mu     sync.Mutex
	writer io.Writer
}

func NewRequestPrinter(writer io.Writer) *RequestPrinter {
	if writer == nil {
		writer = io.Discard
	}
	return &RequestPrinter{writer: writer}
}

func (p *RequestPrinter) Record(o metrics.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.writer, FormatOutcome(o))
}

// ProgressReporter prints a periodic status line while a run is active.
type ProgressReporter struct {
	collector *metrics.Collector
	inFlight  func() int64
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. inFlight may be nil.
func NewProgressReporter(collector *metrics.Collector, inFlight func() int64, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		inFlight:  inFlight,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprintln(p.writer, p.line(time.Since(p.start)))
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line(elapsed time.Duration) string {
	snap := p.collector.Snapshot()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(snap.Total) / elapsed.Seconds()
	}
	line := fmt.Sprintf("--- T+%.0fs: %d done | %d ok | %d failed | %.1f req/s",
		elapsed.Seconds(), snap.Total, snap.Successes, snap.Failures, rate)
	if p.inFlight != nil {
		line += fmt.Sprintf(" | %d in flight", p.inFlight())
	}
	return line + " ---"
}
