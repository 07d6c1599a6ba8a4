package metrics

import (
	"fmt"
	"time"
)

// Outcome is the immutable record of one issued request.
type Outcome struct {
	Sequence   int64         `json:"sequence" yaml:"sequence"`
	StatusCode int           `json:"status_code,omitempty" yaml:"status_code,omitempty"` // 0 when no response arrived
	Duration   time.Duration `json:"-" yaml:"-"`
	Offset     time.Duration `json:"-" yaml:"-"`
	Success    bool          `json:"success" yaml:"success"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`   // failure class, set iff StatusCode is absent
	Detail     string        `json:"detail,omitempty" yaml:"detail,omitempty"` // raw transport error text
	IssuedAt   time.Time     `json:"-" yaml:"-"`
}

// HasStatus reports whether a response status was received.
func (o Outcome) HasStatus() bool {
	return o.StatusCode != 0
}

// NewResponseOutcome builds the outcome of a request that received a response.
func NewResponseOutcome(seq int64, issuedAt time.Time, offset, elapsed time.Duration, status int) Outcome {
	return Outcome{
		Sequence:   seq,
		StatusCode: status,
		Duration:   elapsed,
		Offset:     offset,
		Success:    status == 200,
		IssuedAt:   issuedAt,
	}
}

// NewFailureOutcome builds the outcome of a request that never got a status.
func NewFailureOutcome(seq int64, issuedAt time.Time, offset, elapsed time.Duration, err error) Outcome {
	class := ClassifyError(err)
	if class == "" {
		class = ErrorClassOther
	}
	o := Outcome{
		Sequence: seq,
		Duration: elapsed,
		Offset:   offset,
		Error:    string(class),
		IssuedAt: issuedAt,
	}
	if err != nil {
		o.Detail = err.Error()
	}
	return o
}

func (o Outcome) String() string {
	if o.HasStatus() {
		return fmt.Sprintf("#%d %d in %s", o.Sequence, o.StatusCode, o.Duration)
	}
	return fmt.Sprintf("#%d failed (%s) after %s", o.Sequence, o.Error, o.Duration)
}
