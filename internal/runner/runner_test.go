package runner_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/torosent/relayload/internal/metrics"
	"github.com/torosent/relayload/internal/runner"
)

const testTarget = "http://relay.test/call-tornado"

// fakeRequester simulates a relay exchange with fixed latency.
type fakeRequester struct {
	latency time.Duration
	status  int
	err     error

	calls  atomic.Int64
	active atomic.Int64
	peak   atomic.Int64
}

func (f *fakeRequester) Do(ctx context.Context) (int, error) {
	f.calls.Add(1)
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.latency > 0 {
		timer := time.NewTimer(f.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if f.err != nil {
		return 0, f.err
	}
	if f.status == 0 {
		return http.StatusOK, nil
	}
	return f.status, nil
}

func startRun(t *testing.T, ctx context.Context, opts runner.Options) *runner.Run {
	t.Helper()
	run, err := runner.Start(ctx, opts)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return run
}

func assertDenseSequences(t *testing.T, outcomes []metrics.Outcome) {
	t.Helper()
	var lastOffset time.Duration
	for i, o := range outcomes {
		if o.Sequence != int64(i+1) {
			t.Fatalf("outcome %d has sequence %d, want %d", i, o.Sequence, i+1)
		}
		if o.Offset < lastOffset {
			t.Fatalf("sequence %d issued at %s, before sequence %d at %s", o.Sequence, o.Offset, o.Sequence-1, lastOffset)
		}
		lastOffset = o.Offset
	}
}

func TestBurstAgainstHealthyServer(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/call-tornado" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("endpoint") != "/" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		hits.Add(1)
		_, _ = w.Write([]byte(`{"success": true, "response_text": "ok"}`))
	}))
	defer server.Close()

	run := startRun(t, context.Background(), runner.Options{
		Config: runner.Config{
			TargetURL:      server.URL + "/call-tornado",
			Method:         http.MethodPost,
			Body:           "endpoint=/",
			Mode:           runner.ModeBurst,
			Concurrency:    10,
			RequestTimeout: 5 * time.Second,
		},
	})
	summary := run.Wait()

	if summary.Total != 10 || summary.Successful != 10 || summary.Failed != 0 {
		t.Fatalf("total/successful/failed = %d/%d/%d, want 10/10/0", summary.Total, summary.Successful, summary.Failed)
	}
	if hits.Load() != 10 {
		t.Fatalf("server saw %d valid requests, want 10", hits.Load())
	}
	if summary.SuccessRate != 1 {
		t.Errorf("SuccessRate = %v, want 1", summary.SuccessRate)
	}
	if summary.Histogram[0].Count != 10 {
		t.Errorf("bucket %s = %d, want 10", summary.Histogram[0].Label, summary.Histogram[0].Count)
	}
	if summary.Latency == nil || summary.Latency.Max < summary.Latency.Min {
		t.Errorf("latency stats = %+v", summary.Latency)
	}
	if summary.StatusCodes[200] != 10 {
		t.Errorf("StatusCodes = %v, want 10x200", summary.StatusCodes)
	}
	assertDenseSequences(t, run.Collector().Outcomes())
}

func TestBurstAgainstClosedPort(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	target := server.URL + "/call-tornado"
	server.Close()

	run := startRun(t, context.Background(), runner.Options{
		Config: runner.Config{
			TargetURL:      target,
			Method:         http.MethodPost,
			Body:           "endpoint=/",
			Mode:           runner.ModeBurst,
			Concurrency:    5,
			RequestTimeout: 5 * time.Second,
		},
	})
	summary := run.Wait()

	if summary.Total != 5 || summary.Successful != 0 || summary.Failed != 5 {
		t.Fatalf("total/successful/failed = %d/%d/%d, want 5/0/5", summary.Total, summary.Successful, summary.Failed)
	}
	if summary.SuccessRate != 0 {
		t.Errorf("SuccessRate = %v, want 0", summary.SuccessRate)
	}
	if summary.Latency != nil {
		t.Errorf("latency block present without successes: %+v", summary.Latency)
	}
	if summary.ErrorClasses[string(metrics.ErrorClassConnectionRefused)] != 5 {
		t.Errorf("ErrorClasses = %v, want 5 connection-refused", summary.ErrorClasses)
	}
	if summary.Histogram[0].Count != 5 {
		t.Errorf("duration histogram = %+v, want all 5 refusals in %s", summary.Histogram, summary.Histogram[0].Label)
	}
	for _, o := range run.Collector().Outcomes() {
		if o.HasStatus() || o.Error == "" {
			t.Errorf("outcome %v should carry a failure class and no status", o)
		}
	}
}

func TestUnexpectedStatusIsFailureWithoutErrorClass(t *testing.T) {
	req := &fakeRequester{status: http.StatusInternalServerError}
	run := startRun(t, context.Background(), runner.Options{
		Config:    runner.Config{TargetURL: testTarget, Mode: runner.ModeBurst, Concurrency: 4},
		Requester: req,
	})
	summary := run.Wait()

	if summary.Failed != 4 || summary.StatusCodes[500] != 4 {
		t.Fatalf("Failed = %d StatusCodes = %v, want 4x500", summary.Failed, summary.StatusCodes)
	}
	if len(summary.ErrorClasses) != 0 {
		t.Errorf("ErrorClasses = %v, want none", summary.ErrorClasses)
	}
	for _, o := range run.Collector().Outcomes() {
		if o.Success || o.Error != "" || o.StatusCode != 500 {
			t.Errorf("outcome = %+v, want failed 500 without error", o)
		}
	}
}

func TestBurstIssuesExactlyConcurrency(t *testing.T) {
	req := &fakeRequester{latency: 20 * time.Millisecond}
	run := startRun(t, context.Background(), runner.Options{
		Config:    runner.Config{TargetURL: testTarget, Mode: runner.ModeBurst, Concurrency: 25},
		Requester: req,
	})
	summary := run.Wait()

	if summary.Total != 25 || req.calls.Load() != 25 {
		t.Fatalf("Total = %d calls = %d, want 25", summary.Total, req.calls.Load())
	}
	if run.Issued() != 25 || run.InFlight() != 0 {
		t.Fatalf("Issued = %d InFlight = %d after Wait", run.Issued(), run.InFlight())
	}
	if req.peak.Load() < 2 {
		t.Errorf("burst requests did not overlap: peak %d", req.peak.Load())
	}
	if summary.Mode != string(runner.ModeBurst) || summary.Target != testTarget {
		t.Errorf("Mode/Target = %q/%q", summary.Mode, summary.Target)
	}
	if _, err := ulid.Parse(summary.RunID); err != nil || summary.RunID != run.ID() {
		t.Errorf("RunID = %q (%v), want run ULID %q", summary.RunID, err, run.ID())
	}
	if summary.Interrupted {
		t.Errorf("Interrupted = true for a completed burst")
	}
}

func TestSustainedRespectsTickBound(t *testing.T) {
	const (
		concurrency = 3
		tick        = 20 * time.Millisecond
		duration    = 200 * time.Millisecond
	)
	req := &fakeRequester{latency: time.Millisecond}
	start := time.Now()
	run := startRun(t, context.Background(), runner.Options{
		Config: runner.Config{
			TargetURL:    testTarget,
			Mode:         runner.ModeSustained,
			Concurrency:  concurrency,
			Duration:     duration,
			TickInterval: tick,
		},
		Requester: req,
	})
	summary := run.Wait()
	elapsed := time.Since(start)

	upper := int64(math.Ceil(float64(duration)/float64(tick))) * concurrency
	if summary.Total > upper {
		t.Fatalf("Total = %d, exceeds tick bound %d", summary.Total, upper)
	}
	if summary.Total < upper/2 {
		t.Fatalf("Total = %d, too few for %d ticks", summary.Total, upper/concurrency)
	}
	if summary.Total%concurrency != 0 {
		t.Errorf("Total = %d is not a whole number of batches of %d", summary.Total, concurrency)
	}
	if elapsed < duration {
		t.Errorf("run ended after %s, before duration %s", elapsed, duration)
	}
	for _, o := range run.Collector().Outcomes() {
		if o.Offset > duration+tick/2 {
			t.Errorf("sequence %d issued at %s, after the duration", o.Sequence, o.Offset)
		}
	}
	assertDenseSequences(t, run.Collector().Outcomes())
}

func TestSustainedTwoSecondsAtOnePerTick(t *testing.T) {
	if testing.Short() {
		t.Skip("two second run")
	}
	run := startRun(t, context.Background(), runner.Options{
		Config: runner.Config{
			TargetURL:   testTarget,
			Mode:        runner.ModeSustained,
			Concurrency: 1,
			Duration:    2 * time.Second,
		},
		Requester: &fakeRequester{latency: 5 * time.Millisecond},
	})
	summary := run.Wait()

	if summary.Total < 15 || summary.Total > 20 {
		t.Fatalf("Total = %d, want between 15 and 20", summary.Total)
	}
}

func TestSustainedCapsBatchSize(t *testing.T) {
	req := &fakeRequester{}
	run := startRun(t, context.Background(), runner.Options{
		Config: runner.Config{
			TargetURL:    testTarget,
			Mode:         runner.ModeSustained,
			Concurrency:  10,
			MaxBatch:     3,
			Duration:     100 * time.Millisecond,
			TickInterval: 50 * time.Millisecond,
		},
		Requester: req,
	})
	summary := run.Wait()

	// Ticks at 0ms and 50ms.
	if summary.Total > 6 || summary.Total < 3 {
		t.Fatalf("Total = %d, want at most two batches of 3", summary.Total)
	}
}

func TestSustainedDoesNotWaitForSlowRequests(t *testing.T) {
	req := &fakeRequester{latency: 300 * time.Millisecond}
	run := startRun(t, context.Background(), runner.Options{
		Config: runner.Config{
			TargetURL:    testTarget,
			Mode:         runner.ModeSustained,
			Concurrency:  1,
			Duration:     100 * time.Millisecond,
			TickInterval: 20 * time.Millisecond,
		},
		Requester: req,
	})
	summary := run.Wait()

	if summary.Total < 4 {
		t.Fatalf("Total = %d, issuance stalled behind in-flight requests", summary.Total)
	}
	if summary.Successful != summary.Total {
		t.Errorf("Successful = %d, want all %d drained within grace", summary.Successful, summary.Total)
	}
	if req.peak.Load() < 4 {
		t.Errorf("peak in-flight = %d, want overlapping requests", req.peak.Load())
	}
}

func TestLimiterFactoryReceivesTick(t *testing.T) {
	var got time.Duration
	run := startRun(t, context.Background(), runner.Options{
		Config: runner.Config{
			TargetURL:    testTarget,
			Mode:         runner.ModeSustained,
			Concurrency:  1,
			Duration:     30 * time.Millisecond,
			TickInterval: 10 * time.Millisecond,
		},
		Requester: &fakeRequester{},
		LimiterFactory: func(every time.Duration) *rate.Limiter {
			got = every
			return rate.NewLimiter(rate.Every(every), 1)
		},
	})
	run.Wait()

	if got != 10*time.Millisecond {
		t.Fatalf("limiter built for %s, want 10ms", got)
	}
}

func TestMaxInFlightBoundsOutstandingRequests(t *testing.T) {
	req := &fakeRequester{latency: 10 * time.Millisecond}
	run := startRun(t, context.Background(), runner.Options{
		Config: runner.Config{
			TargetURL:   testTarget,
			Mode:        runner.ModeBurst,
			Concurrency: 20,
			MaxInFlight: 3,
		},
		Requester: req,
	})
	summary := run.Wait()

	if summary.Total != 20 || summary.Successful != 20 {
		t.Fatalf("Total/Successful = %d/%d, want 20/20", summary.Total, summary.Successful)
	}
	if peak := req.peak.Load(); peak > 3 {
		t.Fatalf("peak in-flight = %d, want <= 3", peak)
	}
	assertDenseSequences(t, run.Collector().Outcomes())
}

func TestRequestTimeoutRecordsTimeout(t *testing.T) {
	run := startRun(t, context.Background(), runner.Options{
		Config: runner.Config{
			TargetURL:      testTarget,
			Mode:           runner.ModeBurst,
			Concurrency:    3,
			RequestTimeout: 20 * time.Millisecond,
		},
		Requester: &fakeRequester{latency: time.Hour},
	})
	summary := run.Wait()

	if summary.ErrorClasses[string(metrics.ErrorClassTimeout)] != 3 {
		t.Fatalf("ErrorClasses = %v, want 3 timeouts", summary.ErrorClasses)
	}
	for _, o := range run.Collector().Outcomes() {
		if o.Duration < 20*time.Millisecond {
			t.Errorf("timed out request measured %s, shorter than the timeout", o.Duration)
		}
	}
}

func TestDrainCancelsStragglers(t *testing.T) {
	start := time.Now()
	run := startRun(t, context.Background(), runner.Options{
		Config: runner.Config{
			TargetURL:    testTarget,
			Mode:         runner.ModeSustained,
			Concurrency:  2,
			Duration:     50 * time.Millisecond,
			TickInterval: 10 * time.Millisecond,
			DrainGrace:   50 * time.Millisecond,
		},
		Requester: &fakeRequester{latency: time.Hour},
	})
	summary := run.Wait()
	elapsed := time.Since(start)

	if elapsed > 2*time.Second {
		t.Fatalf("drain took %s", elapsed)
	}
	if elapsed < 100*time.Millisecond {
		t.Fatalf("run ended after %s, before the drain grace ran out", elapsed)
	}
	if summary.Total == 0 || summary.Total != run.Issued() {
		t.Fatalf("Total = %d, Issued = %d", summary.Total, run.Issued())
	}
	if got := summary.ErrorClasses[string(metrics.ErrorClassCanceled)]; got != summary.Total {
		t.Fatalf("canceled = %d, want all %d", got, summary.Total)
	}
	if summary.Interrupted {
		t.Errorf("Interrupted = true for a run that reached its duration")
	}
}

func TestNegativeDrainGraceCancelsImmediately(t *testing.T) {
	start := time.Now()
	run := startRun(t, context.Background(), runner.Options{
		Config: runner.Config{
			TargetURL:    testTarget,
			Mode:         runner.ModeSustained,
			Concurrency:  1,
			Duration:     30 * time.Millisecond,
			TickInterval: 10 * time.Millisecond,
			DrainGrace:   -1,
		},
		Requester: &fakeRequester{latency: time.Hour},
	})
	summary := run.Wait()

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("run took %s with no drain grace", elapsed)
	}
	if summary.Successful != 0 || summary.Failed != summary.Total {
		t.Fatalf("Successful/Failed = %d/%d", summary.Successful, summary.Failed)
	}
}

func TestCancelStopsIssuanceAndDrains(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := &fakeRequester{latency: time.Hour}
	run := startRun(t, ctx, runner.Options{
		Config: runner.Config{
			TargetURL:    testTarget,
			Mode:         runner.ModeSustained,
			Concurrency:  1,
			Duration:     time.Hour,
			TickInterval: 10 * time.Millisecond,
			DrainGrace:   30 * time.Millisecond,
		},
		Requester: req,
	})

	time.Sleep(55 * time.Millisecond)
	cancel()

	select {
	case <-run.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run did not finish after cancellation")
	}
	summary := run.Wait()

	if !summary.Interrupted {
		t.Errorf("Interrupted = false after cancellation")
	}
	if summary.Total == 0 || summary.Total > 10 {
		t.Fatalf("Total = %d, want a handful of requests before the interrupt", summary.Total)
	}
	if got := summary.ErrorClasses[string(metrics.ErrorClassCanceled)]; got != summary.Total {
		t.Fatalf("canceled = %d, want %d", got, summary.Total)
	}
	assertDenseSequences(t, run.Collector().Outcomes())
}

func TestInterruptedRunKeepsCompletedRequests(t *testing.T) {
	req := &fakeRequester{latency: 40 * time.Millisecond}
	run := startRun(t, context.Background(), runner.Options{
		Config: runner.Config{
			TargetURL:    testTarget,
			Mode:         runner.ModeSustained,
			Concurrency:  1,
			Duration:     time.Hour,
			TickInterval: 10 * time.Millisecond,
			DrainGrace:   time.Second,
		},
		Requester: req,
	})
	time.Sleep(35 * time.Millisecond)
	run.Cancel()
	summary := run.Wait()

	if !summary.Interrupted {
		t.Errorf("Interrupted = false after Cancel")
	}
	if summary.Successful != summary.Total {
		t.Fatalf("Successful = %d of %d, in-flight requests should finish within the grace", summary.Successful, summary.Total)
	}
}

func TestStartRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  runner.Config
	}{
		{"zero concurrency", runner.Config{TargetURL: testTarget, Mode: runner.ModeBurst}},
		{"negative concurrency", runner.Config{TargetURL: testTarget, Mode: runner.ModeBurst, Concurrency: -1}},
		{"sustained without duration", runner.Config{TargetURL: testTarget, Mode: runner.ModeSustained, Concurrency: 1}},
		{"sustained negative duration", runner.Config{TargetURL: testTarget, Mode: runner.ModeSustained, Concurrency: 1, Duration: -time.Second}},
		{"relative target", runner.Config{TargetURL: "localhost:5000/call-tornado", Mode: runner.ModeBurst, Concurrency: 1}},
		{"unknown mode", runner.Config{TargetURL: testTarget, Mode: "ramp", Concurrency: 1}},
		{"negative timeout", runner.Config{TargetURL: testTarget, Mode: runner.ModeBurst, Concurrency: 1, RequestTimeout: -time.Second}},
		{"negative in-flight", runner.Config{TargetURL: testTarget, Mode: runner.ModeBurst, Concurrency: 1, MaxInFlight: -1}},
		{"body and body file", runner.Config{TargetURL: testTarget, Mode: runner.ModeBurst, Concurrency: 1, Body: "a", BodyFile: "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := runner.Start(context.Background(), runner.Options{Config: tt.cfg})
			if err == nil {
				run.Wait()
				t.Fatal("Start() error = nil")
			}
			var cfgErr *runner.ConfigError
			if !errors.As(err, &cfgErr) || len(cfgErr.Issues) == 0 {
				t.Fatalf("Start() error = %v (%T), want *ConfigError", err, err)
			}
		})
	}
}

func TestRecorderSeesEveryOutcome(t *testing.T) {
	var mu sync.Mutex
	var seen []int64
	var failures atomic.Int64

	rec := runner.RecorderFunc(func(o metrics.Outcome) {
		mu.Lock()
		seen = append(seen, o.Sequence)
		mu.Unlock()
	})
	logger := failureCounter{n: &failures}

	collector := metrics.NewCollector()
	run := startRun(t, context.Background(), runner.Options{
		Config:    runner.Config{TargetURL: testTarget, Mode: runner.ModeBurst, Concurrency: 6},
		Requester: &alternatingRequester{},
		Collector: collector,
		Recorder:  runner.WithFailureLogging(runner.Tee(rec, nil), logger),
	})
	summary := run.Wait()

	if run.Collector() != collector {
		t.Fatalf("run did not use the supplied collector")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 6 {
		t.Fatalf("recorder saw %d outcomes, want 6", len(seen))
	}
	if failures.Load() != summary.Failed || summary.Failed != 3 {
		t.Fatalf("logged %d failures, summary has %d, want 3", failures.Load(), summary.Failed)
	}
}

type failureCounter struct{ n *atomic.Int64 }

func (f failureCounter) LogFailure(metrics.Outcome) { f.n.Add(1) }

// alternatingRequester fails every other call.
type alternatingRequester struct{ calls atomic.Int64 }

func (a *alternatingRequester) Do(context.Context) (int, error) {
	if a.calls.Add(1)%2 == 0 {
		return 0, errors.New("connection reset by peer")
	}
	return http.StatusOK, nil
}

func TestDrainingClosesBeforeDone(t *testing.T) {
	req := &fakeRequester{latency: 150 * time.Millisecond}
	run := startRun(t, context.Background(), runner.Options{
		Config: runner.Config{
			TargetURL:   testTarget,
			Mode:        runner.ModeBurst,
			Concurrency: 3,
		},
		Requester: req,
	})

	select {
	case <-run.Draining():
	case <-time.After(time.Second):
		t.Fatal("issuance did not finish")
	}
	select {
	case <-run.Done():
		t.Fatal("run finished before its requests completed")
	default:
	}
	if run.Issued() != 3 {
		t.Fatalf("Issued() = %d, want 3", run.Issued())
	}

	summary := run.Wait()
	if summary.Total != 3 {
		t.Fatalf("Total = %d, want 3", summary.Total)
	}
}
