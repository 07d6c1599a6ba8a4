package metrics

import (
	"sort"
	"strconv"
)

// StatusBucket is one row of the status/failure breakdown.
type StatusBucket struct {
	Kind  string // "status" or "error"
	Code  string
	Count int64
}

// FlattenStatusBuckets merges received status codes and failure classes into
// one slice. Rows are sorted by descending count, then by kind/code for
// stability.
func FlattenStatusBuckets(codes map[int]int64, classes map[string]int64) []StatusBucket {
	if len(codes) == 0 && len(classes) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0, len(codes)+len(classes))
	for code, count := range codes {
		rows = append(rows, StatusBucket{Kind: "status", Code: strconv.Itoa(code), Count: count})
	}
	for class, count := range classes {
		rows = append(rows, StatusBucket{Kind: "error", Code: class, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Kind == rows[j].Kind {
				return rows[i].Code < rows[j].Code
			}
			return rows[i].Kind > rows[j].Kind
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
