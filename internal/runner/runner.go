package runner

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/semaphore"

	"github.com/torosent/relayload/internal/metrics"
)

// Run is a started load run. All methods are safe for concurrent use.
type Run struct {
	id        string
	cfg       Config
	opts      Options
	requester Requester
	collector *metrics.Collector
	recorder  Recorder
	sem       *semaphore.Weighted

	start time.Time

	// issueCtx stops issuance; requestCtx cancels in-flight requests once the
	// drain grace has run out.
	issueCtx       context.Context
	stopIssuing    context.CancelFunc
	requestCtx     context.Context
	cancelRequests context.CancelFunc

	group    conc.WaitGroup
	issued   atomic.Int64
	inFlight atomic.Int64

	draining chan struct{}
	done     chan struct{}
	summary  metrics.Summary
}

// Start validates opts and begins issuing requests in the background.
// Cancelling ctx stops issuance; requests already in flight are drained the
// same way as at the natural end of the run.
func Start(ctx context.Context, opts Options) (*Run, error) {
	opts.normalize()
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	requester, err := opts.requester()
	if err != nil {
		return nil, err
	}

	r := &Run{
		id:        ulid.Make().String(),
		cfg:       opts.Config,
		opts:      opts,
		requester: requester,
		collector: opts.Collector,
		recorder:  opts.Recorder,
		draining:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	if r.cfg.MaxInFlight > 0 {
		r.sem = semaphore.NewWeighted(int64(r.cfg.MaxInFlight))
	}

	r.issueCtx, r.stopIssuing = context.WithCancel(ctx)
	// Requests keep the caller's values (trace context) but not its
	// cancellation, which only ends issuance.
	r.requestCtx, r.cancelRequests = context.WithCancel(context.WithoutCancel(ctx))

	r.start = time.Now()
	go r.loop()
	return r, nil
}

// ID is the ULID identifying this run.
func (r *Run) ID() string { return r.id }

func (r *Run) StartedAt() time.Time { return r.start }

// Collector exposes the live aggregator, e.g. for dashboards.
func (r *Run) Collector() *metrics.Collector { return r.collector }

// Issued returns the number of requests issued so far.
func (r *Run) Issued() int64 { return r.issued.Load() }

// InFlight returns the number of requests awaiting completion.
func (r *Run) InFlight() int64 { return r.inFlight.Load() }

// Cancel stops issuance. In-flight requests are drained, then cancelled.
func (r *Run) Cancel() { r.stopIssuing() }

// Draining is closed when issuance has stopped and only in-flight requests
// remain.
func (r *Run) Draining() <-chan struct{} { return r.draining }

// Done is closed once the summary is available.
func (r *Run) Done() <-chan struct{} { return r.done }

// Wait blocks until the run terminates and returns its summary.
func (r *Run) Wait() metrics.Summary {
	<-r.done
	return r.summary
}

func (r *Run) loop() {
	defer close(r.done)
	defer r.cancelRequests()
	defer r.stopIssuing()

	switch r.cfg.Mode {
	case ModeSustained:
		r.issueSustained()
	default:
		r.issueBurst()
	}

	interrupted := r.issueCtx.Err() != nil
	close(r.draining)
	r.drain(interrupted)

	summary := r.collector.Summarize(r.start, time.Now())
	summary.RunID = r.id
	summary.Mode = string(r.cfg.Mode)
	summary.Target = r.cfg.TargetURL
	summary.Interrupted = interrupted
	r.summary = summary
}

func (r *Run) issueBurst() {
	for i := 0; i < r.cfg.Concurrency; i++ {
		if !r.issue(r.issueCtx) {
			return
		}
	}
}

func (r *Run) issueSustained() {
	ctx, cancel := context.WithDeadline(r.issueCtx, r.start.Add(r.cfg.Duration))
	defer cancel()

	r.tick(ctx)
	// The run lasts the full duration even when the last tick fell short of it.
	<-ctx.Done()
}

func (r *Run) tick(ctx context.Context) {
	limiter := r.opts.LimiterFactory(r.cfg.TickInterval)
	batch := r.cfg.BatchSize()
	for {
		// Wait fails early once the next tick would land past the deadline.
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if time.Since(r.start) >= r.cfg.Duration {
			return
		}
		for i := 0; i < batch; i++ {
			if !r.issue(ctx) {
				return
			}
		}
	}
}

// issue launches one request. Sequence ids are assigned here, by the single
// issuing goroutine, so they are dense and issuance-ordered.
func (r *Run) issue(ctx context.Context) bool {
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return false
		}
	}
	if ctx.Err() != nil {
		if r.sem != nil {
			r.sem.Release(1)
		}
		return false
	}

	seq := r.issued.Add(1)
	issuedAt := time.Now()
	offset := issuedAt.Sub(r.start)
	r.inFlight.Add(1)
	r.group.Go(func() {
		defer r.inFlight.Add(-1)
		if r.sem != nil {
			defer r.sem.Release(1)
		}
		r.record(r.execute(seq, issuedAt, offset))
	})
	return true
}

func (r *Run) execute(seq int64, issuedAt time.Time, offset time.Duration) metrics.Outcome {
	ctx := r.requestCtx
	if r.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.RequestTimeout)
		defer cancel()
	}

	status, err := r.requester.Do(ctx)
	elapsed := time.Since(issuedAt)
	if err != nil {
		return metrics.NewFailureOutcome(seq, issuedAt, offset, elapsed, err)
	}
	return metrics.NewResponseOutcome(seq, issuedAt, offset, elapsed, status)
}

func (r *Run) record(o metrics.Outcome) {
	r.collector.Record(o)
	if r.recorder != nil {
		r.recorder.Record(o)
	}
}

// drain waits for in-flight requests. An uninterrupted burst waits for every
// request, each bounded by its own timeout. Otherwise requests still running
// after the grace period are cancelled and recorded as such.
func (r *Run) drain(interrupted bool) {
	finished := make(chan struct{})
	go func() {
		r.group.Wait()
		close(finished)
	}()

	if r.cfg.Mode == ModeBurst && !interrupted {
		<-finished
		return
	}

	if r.cfg.DrainGrace > 0 {
		timer := time.NewTimer(r.cfg.DrainGrace)
		defer timer.Stop()
		select {
		case <-finished:
			return
		case <-timer.C:
		}
	}
	r.cancelRequests()
	<-finished
}
