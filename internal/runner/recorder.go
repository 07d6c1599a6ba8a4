package runner

import (
	"github.com/torosent/relayload/internal/metrics"
)

// Recorder observes request outcomes as they complete. Record is called from
// many goroutines at once.
type Recorder interface {
	Record(metrics.Outcome)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(metrics.Outcome)

func (f RecorderFunc) Record(o metrics.Outcome) { f(o) }

type tee []Recorder

func (t tee) Record(o metrics.Outcome) {
	for _, rec := range t {
		rec.Record(o)
	}
}

// Tee fans every outcome out to each non-nil recorder, in order.
func Tee(recorders ...Recorder) Recorder {
	out := make(tee, 0, len(recorders))
	for _, rec := range recorders {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// FailureLogger logs failed requests.
type FailureLogger interface {
	LogFailure(o metrics.Outcome)
}

type loggingRecorder struct {
	inner  Recorder
	logger FailureLogger
}

// WithFailureLogging passes every unsuccessful outcome to logger before
// forwarding it to rec, which may be nil.
func WithFailureLogging(rec Recorder, logger FailureLogger) Recorder {
	if logger == nil {
		return rec
	}
	return &loggingRecorder{inner: rec, logger: logger}
}

func (l *loggingRecorder) Record(o metrics.Outcome) {
	if !o.Success {
		l.logger.LogFailure(o)
	}
	if l.inner != nil {
		l.inner.Record(o)
	}
}
