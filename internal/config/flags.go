package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const usageLine = "relayload [flags] <sync|async> <count> [duration-seconds]"

// RegisterFlags registers the run flags on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// RegisterCheckFlags registers the subset of flags the preflight check reads.
func RegisterCheckFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Bool("via-proxy", false, "Check the proxy address instead of the direct one")
	flags.String("direct-addr", DefaultDirectAddr, "Direct service address (host:port or base URL)")
	flags.String("proxy-addr", DefaultProxyAddr, "Proxy address used with --via-proxy")
	flags.Duration("timeout", 10*time.Second, "Per-probe timeout")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
}

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           usageLine,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	// Target
	flags.Bool("via-proxy", false, "Send requests through the proxy address instead of the direct one")
	flags.String("direct-addr", DefaultDirectAddr, "Direct service address (host:port or base URL)")
	flags.String("proxy-addr", DefaultProxyAddr, "Proxy address used with --via-proxy")

	// Request
	flags.String("method", DefaultMethod, "HTTP method to use (GET or POST); GET drops the default form body")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("body", DefaultBody, "Inline request body payload")
	flags.String("body-file", "", "Path to file containing the request body")
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")
	flags.Bool("no-keepalive", false, "Open a fresh connection for every request")

	// Pacing
	flags.Duration("tick", DefaultTick, "Sustained mode issuance interval")
	flags.Int("max-batch", DefaultMaxBatch, "Upper bound on requests issued per tick (0 = no cap)")
	flags.Int("max-inflight", 0, "Upper bound on outstanding requests (0 = unbounded)")
	flags.Duration("drain", DefaultDrain, "How long to wait for in-flight requests after issuance stops (0 = default 5s, negative = cancel immediately)")

	// Output
	flags.StringP("output", "o", string(OutputText), "Summary format: text, json or yaml")
	flags.BoolP("quiet", "q", false, "Suppress per-request progress lines")
	flags.Bool("log-errors", false, "Log each failed request to stderr")
	flags.Bool("dashboard", false, "Show live terminal dashboard with metrics")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Safety
	flags.BoolP("yes", "y", false, "Skip the confirmation prompt for large runs")
	flags.Int("confirm-above", DefaultConfirmAbove, "Ask for confirmation when a run plans more requests than this (0 = never ask)")

	// Tracing
	flags.String("otel-endpoint", "", "OTLP collector endpoint (enables tracing)")
	flags.String("otel-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("otel-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("otel-sample-rate", 1.0, "Fraction of requests to trace (0.0-1.0)")
	flags.String("otel-service-name", "", "Service name reported on spans")
	flags.Bool("otel-propagate", true, "Inject W3C trace context headers into requests")
}

func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", usageLine)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides copies explicitly set flags onto cfg. Flags left at their
// defaults never override file or environment settings.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	str := func(name string, dst *string) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetString(name)
	}
	boolean := func(name string, dst *bool) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetBool(name)
	}
	integer := func(name string, dst *int) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetInt(name)
	}
	duration := func(name string, dst *time.Duration) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetDuration(name)
	}

	boolean("via-proxy", &cfg.ViaProxy)
	str("direct-addr", &cfg.DirectAddr)
	str("proxy-addr", &cfg.ProxyAddr)
	str("method", &cfg.Method)
	str("body", &cfg.Body)
	str("body-file", &cfg.BodyFile)
	boolean("no-keepalive", &cfg.NoKeepAlive)
	duration("timeout", &cfg.Timeout)
	duration("tick", &cfg.Tick)
	duration("drain", &cfg.Drain)
	integer("max-batch", &cfg.MaxBatch)
	integer("max-inflight", &cfg.MaxInFlight)
	boolean("quiet", &cfg.Quiet)
	boolean("log-errors", &cfg.LogErrors)
	boolean("dashboard", &cfg.Dashboard)
	boolean("yes", &cfg.AssumeYes)
	integer("confirm-above", &cfg.ConfirmAbove)
	str("otel-endpoint", &cfg.Tracing.Endpoint)
	str("otel-protocol", &cfg.Tracing.Protocol)
	str("otel-service-name", &cfg.Tracing.ServiceName)
	boolean("otel-insecure", &cfg.Tracing.Insecure)
	if err != nil {
		return err
	}

	if fs.Changed("body-file") && !fs.Changed("body") {
		// An explicit body file replaces the default form body.
		cfg.Body = ""
	}

	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if fs.Changed("otel-sample-rate") {
		val, err := fs.GetFloat64("otel-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("otel-propagate") {
		val, err := fs.GetBool("otel-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}

	if fs.Changed("header") {
		values, err := fs.GetStringSlice("header")
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, raw := range values {
			key, value, err := parseHeader(raw)
			if err != nil {
				return err
			}
			cfg.Headers[key] = value
		}
	}
	return nil
}

func parseHeader(raw string) (string, string, error) {
	key, value, ok := strings.Cut(raw, "=")
	if !ok {
		key, value, ok = strings.Cut(raw, ":")
	}
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid header %q: expected key=value", raw)
	}
	return http.CanonicalHeaderKey(key), strings.TrimSpace(value), nil
}
