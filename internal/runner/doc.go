// Package runner issues relay requests according to a burst or sustained
// policy and feeds every outcome to a metrics.Collector.
//
// # Starting a Run
//
//	run, err := runner.Start(ctx, runner.Options{
//		Config: runner.Config{
//			TargetURL:      "http://localhost:5000/call-tornado",
//			Method:         "POST",
//			Body:           "endpoint=/",
//			Mode:           runner.ModeSustained,
//			Concurrency:    50,
//			Duration:       30 * time.Second,
//			RequestTimeout: time.Minute,
//		},
//	})
//	if err != nil {
//		return err // *runner.ConfigError
//	}
//	summary := run.Wait()
//
// # Policies
//
// [ModeBurst] issues Concurrency requests at once and waits for every one of
// them to complete or time out.
//
// [ModeSustained] issues min(Concurrency, MaxBatch) requests every
// TickInterval, paced by a golang.org/x/time/rate limiter, until Duration has
// elapsed. Ticks never wait for earlier requests.
//
// # Draining
//
// Once issuance stops, whether the duration ran out or ctx was cancelled, the
// run waits up to DrainGrace for outstanding requests. Anything still running
// is then cancelled and recorded with the "canceled" failure class. The
// summary is only computed after every request goroutine has returned.
//
// # In-flight Bound
//
// MaxInFlight limits outstanding requests with a weighted semaphore; issuance
// blocks for a free slot. The default of zero leaves the run unbounded.
//
// # Observing Outcomes
//
// Besides the collector, a [Recorder] sees every outcome as it completes. Use
// [Tee] to combine several and [WithFailureLogging] to log failures.
package runner
