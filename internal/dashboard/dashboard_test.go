package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/relayload/internal/metrics"
)

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name      string
		cfg       RunConfig
		elapsed   time.Duration
		completed int64
		want      int
	}{
		{"burst halfway", RunConfig{Count: 10}, time.Second, 5, 50},
		{"burst done", RunConfig{Count: 10}, time.Second, 10, 100},
		{"burst overshoot clamps", RunConfig{Count: 10}, time.Second, 12, 100},
		{"sustained by time", RunConfig{Sustained: true, Count: 5, Duration: 4 * time.Second}, time.Second, 500, 25},
		{"sustained past duration", RunConfig{Sustained: true, Duration: 2 * time.Second}, 3 * time.Second, 0, 100},
		{"nothing planned", RunConfig{}, time.Second, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := progressPercent(tt.cfg, tt.elapsed, tt.completed); got != tt.want {
				t.Errorf("progressPercent() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestAppendHistoryKeepsLimit(t *testing.T) {
	var history []float64
	for i := 1; i <= 5; i++ {
		history = appendHistory(history, float64(i), 3)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(history))
	}
	if history[0] != 3 || history[2] != 5 {
		t.Errorf("expected newest samples [3 4 5], got %v", history)
	}
}

func TestBucketData(t *testing.T) {
	data := bucketData([metrics.BucketCount]int64{4, 3, 0, 1})
	want := []float64{4, 3, 0, 1}
	if len(data) != len(want) {
		t.Fatalf("expected %d values, got %d", len(want), len(data))
	}
	for i := range want {
		if data[i] != want[i] {
			t.Errorf("data[%d] = %v, want %v", i, data[i], want[i])
		}
	}
	if labels := metrics.BucketLabels(); len(labels) != len(data) {
		t.Errorf("expected one label per bucket, got %v", labels)
	}
}

func TestFormatStatusListRows(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		rows := formatStatusListRows(nil, nil)
		if len(rows) != 1 || !strings.Contains(rows[0], "Awaiting responses") {
			t.Fatalf("expected placeholder row, got %v", rows)
		}
	})

	t.Run("codes and classes", func(t *testing.T) {
		rows := formatStatusListRows(
			map[int]int64{200: 9, 502: 2},
			map[string]int64{string(metrics.ErrorClassConnectionRefused): 4},
		)
		if len(rows) != 3 {
			t.Fatalf("expected 3 rows, got %v", rows)
		}
		if rows[0] != "[HTTP 200](fg:green) 9" {
			t.Errorf("rows[0] = %q", rows[0])
		}
		if rows[1] != "[Connection refused](fg:red) 4" {
			t.Errorf("rows[1] = %q", rows[1])
		}
		if rows[2] != "[HTTP 502](fg:red) 2" {
			t.Errorf("rows[2] = %q", rows[2])
		}
	})

	t.Run("caps rows", func(t *testing.T) {
		codes := make(map[int]int64)
		for i := 0; i < 15; i++ {
			codes[400+i] = int64(i + 1)
		}
		if rows := formatStatusListRows(codes, nil); len(rows) != 10 {
			t.Fatalf("expected 10 rows, got %d", len(rows))
		}
	})
}

func TestFormatRunParams(t *testing.T) {
	burst := formatRunParams(RunConfig{Endpoint: "sync", Method: "POST", Count: 20, Timeout: time.Minute})
	for _, want := range []string{"Endpoint: sync", "Method: POST", "Burst: 20", "Timeout: 1m0s"} {
		if !strings.Contains(burst, want) {
			t.Errorf("burst params %q missing %q", burst, want)
		}
	}

	sustained := formatRunParams(RunConfig{
		Endpoint:    "async",
		Sustained:   true,
		BatchSize:   5,
		Tick:        100 * time.Millisecond,
		Duration:    2 * time.Second,
		Planned:     100,
		MaxInFlight: 8,
	})
	for _, want := range []string{"Sustained: 5 every 100ms for 2s", "Planned: 100", "Max in flight: 8"} {
		if !strings.Contains(sustained, want) {
			t.Errorf("sustained params %q missing %q", sustained, want)
		}
	}
	if strings.Contains(sustained, "Burst") {
		t.Errorf("sustained params should not mention burst: %q", sustained)
	}
}
