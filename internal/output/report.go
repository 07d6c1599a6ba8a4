package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/relayload/internal/config"
	"github.com/torosent/relayload/internal/metrics"
)

// PrintBanner describes the run before it starts.
func PrintBanner(w io.Writer, cfg config.Config) {
	fmt.Fprintf(w, "--- %s Load Test Configuration ---\n", strings.ToUpper(string(cfg.Endpoint)))
	fmt.Fprintf(w, "Target:            %s\n", cfg.TargetURL())
	fmt.Fprintf(w, "Method:            %s\n", cfg.Method)
	if cfg.Sustained() {
		fmt.Fprintf(w, "Mode:              sustained\n")
		fmt.Fprintf(w, "Batch:             %d requests every %s\n", cfg.BatchSize(), cfg.Tick)
		fmt.Fprintf(w, "Duration:          %s\n", cfg.Duration)
	} else {
		fmt.Fprintf(w, "Mode:              burst\n")
		fmt.Fprintf(w, "Burst Size:        %d\n", cfg.Count)
	}
	fmt.Fprintf(w, "Planned Requests:  %d\n", cfg.PlannedRequests())
	fmt.Fprintf(w, "Timeout:           %s\n", cfg.Timeout)
	if cfg.MaxInFlight > 0 {
		fmt.Fprintf(w, "Max In Flight:     %d\n", cfg.MaxInFlight)
	}
	switch cfg.Endpoint {
	case config.EndpointSync:
		fmt.Fprintln(w, "\nSync endpoint: the blocking relay should exhaust the service thread pool.")
	case config.EndpointAsync:
		fmt.Fprintln(w, "\nAsync endpoint: the non-blocking relay should absorb the load.")
	}
	fmt.Fprintf(w, "Starting at %s\n\n", time.Now().Format("15:04:05"))
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, s metrics.Summary, endpoint config.EndpointType) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	if s.RunID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", s.RunID)
	}
	if s.Target != "" {
		fmt.Fprintf(w, "Target:            %s\n", s.Target)
	}
	if s.Mode != "" {
		fmt.Fprintf(w, "Mode:              %s\n", s.Mode)
	}
	fmt.Fprintf(w, "Total Requests:    %d\n", s.Total)
	fmt.Fprintf(w, "Successful:        %d\n", s.Successful)
	fmt.Fprintf(w, "Failed:            %d\n", s.Failed)
	fmt.Fprintf(w, "Success Rate:      %.1f%%\n", s.SuccessRate*100)
	fmt.Fprintf(w, "Duration:          %.2fs\n", s.ElapsedSeconds)
	fmt.Fprintf(w, "Requests/sec:      %.2f\n", s.AchievedRate)
	if s.Interrupted {
		fmt.Fprintln(w, "Interrupted:       yes")
	}

	if s.Latency != nil {
		fmt.Fprintln(w, "\nResponse Times:")
		fmt.Fprintf(w, "  Min:             %s\n", seconds(s.Latency.Min))
		fmt.Fprintf(w, "  Max:             %s\n", seconds(s.Latency.Max))
		fmt.Fprintf(w, "  Avg:             %s\n", seconds(s.Latency.Avg))
		fmt.Fprintf(w, "  P50:             %s\n", seconds(s.Latency.P50))
		fmt.Fprintf(w, "  P90:             %s\n", seconds(s.Latency.P90))
		fmt.Fprintf(w, "  P99:             %s\n", seconds(s.Latency.P99))
		if s.Latency.SlowCount > 0 {
			fmt.Fprintf(w, "  Slow (>%s):       %d\n", metrics.SlowThreshold, s.Latency.SlowCount)
		}
	} else {
		fmt.Fprintln(w, "\nResponse Times:    no successful requests")
	}

	if len(s.Histogram) > 0 {
		fmt.Fprintln(w, "\nDuration Histogram:")
		for _, b := range s.Histogram {
			fmt.Fprintf(w, "  %-16s %d\n", b.Label, b.Count)
		}
	}

	if rows := metrics.FlattenStatusBuckets(s.StatusCodes, s.ErrorClasses); len(rows) > 0 {
		fmt.Fprintln(w, "\nStatus Buckets:")
		for _, row := range rows {
			if row.Kind == "status" {
				fmt.Fprintf(w, "  HTTP %s: %d\n", row.Code, row.Count)
				continue
			}
			fmt.Fprintf(w, "  %s: %d\n", metrics.FriendlyErrorName(row.Code), row.Count)
		}
	}

	if hints := analysisHints(endpoint); len(hints) > 0 {
		fmt.Fprintln(w, "\nAnalysis:")
		for _, hint := range hints {
			fmt.Fprintf(w, "  - %s\n", hint)
		}
	}
}

func analysisHints(endpoint config.EndpointType) []string {
	switch endpoint {
	case config.EndpointSync:
		return []string{
			"High response times indicate thread pool exhaustion",
			"Pages served by the same service should be slow or unresponsive during the run",
			"Failed requests indicate the service could not handle the load",
		}
	case config.EndpointAsync:
		return []string{
			"Response times should be more consistent",
			"Pages served by the same service should remain responsive",
			"Concurrent load should be handled without failures",
		}
	default:
		return nil
	}
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, s metrics.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, s metrics.Summary) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return err
	}
	return enc.Close()
}

// Write renders s in the requested format.
func Write(w io.Writer, format config.OutputFormat, s metrics.Summary, endpoint config.EndpointType) error {
	switch format {
	case config.OutputJSON:
		return PrintJSONReport(w, s)
	case config.OutputYAML:
		return PrintYAMLReport(w, s)
	case config.OutputText, "":
		PrintReport(w, s, endpoint)
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
