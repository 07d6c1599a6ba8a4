package metrics

import (
	"fmt"
	"time"
)

// bucketBounds are the upper edges of the fixed duration ranges
// [0,3s), [3s,10s), [10s,30s) and [30s,∞).
var bucketBounds = []time.Duration{3 * time.Second, 10 * time.Second, 30 * time.Second}

// BucketCount is the number of duration histogram buckets.
const BucketCount = 4

// Bucket is one range of the duration histogram. Upper is zero for the open
// last bucket.
type Bucket struct {
	Label string        `json:"label" yaml:"label"`
	Lower time.Duration `json:"-" yaml:"-"`
	Upper time.Duration `json:"-" yaml:"-"`
	Count int64         `json:"count" yaml:"count"`
}

// BucketFor returns the histogram index for a duration.
func BucketFor(d time.Duration) int {
	for i, upper := range bucketBounds {
		if d < upper {
			return i
		}
	}
	return len(bucketBounds)
}

func newBuckets(counts [BucketCount]int64) []Bucket {
	buckets := make([]Bucket, BucketCount)
	var lower time.Duration
	for i := range buckets {
		b := Bucket{Lower: lower, Count: counts[i]}
		if i < len(bucketBounds) {
			b.Upper = bucketBounds[i]
			b.Label = fmt.Sprintf("%s-%s", formatBound(lower), formatBound(b.Upper))
			lower = b.Upper
		} else {
			b.Label = fmt.Sprintf(">=%s", formatBound(lower))
		}
		buckets[i] = b
	}
	return buckets
}

func formatBound(d time.Duration) string {
	return fmt.Sprintf("%ds", int(d/time.Second))
}

// BucketLabels returns the histogram range labels in bucket order.
func BucketLabels() []string {
	buckets := newBuckets([BucketCount]int64{})
	labels := make([]string, len(buckets))
	for i, b := range buckets {
		labels[i] = b.Label
	}
	return labels
}
