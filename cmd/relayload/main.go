package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/torosent/relayload/internal/config"
	"github.com/torosent/relayload/internal/confirm"
	"github.com/torosent/relayload/internal/dashboard"
	"github.com/torosent/relayload/internal/httpclient"
	"github.com/torosent/relayload/internal/metrics"
	"github.com/torosent/relayload/internal/output"
	"github.com/torosent/relayload/internal/preflight"
	"github.com/torosent/relayload/internal/runner"
	"github.com/torosent/relayload/internal/tracing"
)

const (
	progressInterval     = time.Second
	defaultProbeTimeout  = 10 * time.Second
	tracingFlushDeadline = 5 * time.Second
)

// streams are the process stdio, swapped out in tests.
type streams struct {
	in  *os.File
	out io.Writer
	err io.Writer
}

type stderrFailureLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// lockedWriter serialises writes from the request printer, the progress
// reporter and the main goroutine.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], streams{in: os.Stdin, out: os.Stdout, err: os.Stderr})
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, s streams) error {
	cmd := newRootCommand(s)
	cmd.SetArgs(args)
	cmd.SetOut(s.out)
	cmd.SetErr(s.err)
	return cmd.ExecuteContext(ctx)
}

func newRootCommand(s streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relayload [flags] <sync|async> <count> [duration-seconds]",
		Short: "Load generator for the sync and async relay endpoints",
		Long: `relayload fires HTTP requests at the relay service to compare its blocking
(sync) and non-blocking (async) relay endpoints.

Without a duration, <count> requests are sent at once. With a duration,
<count> requests are sent every tick until the duration has elapsed.`,
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			if len(args) == 0 && configPath == "" {
				return cmd.Help()
			}
			cfg, err := config.NewLoader().LoadFlags(cmd.Flags(), args)
			if err != nil {
				return err
			}
			return runLoad(cmd.Context(), cfg, s)
		},
	}
	config.RegisterFlags(cmd)
	cmd.AddCommand(newCheckCommand(s))
	return cmd
}

func newCheckCommand(s streams) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "check",
		Short:         "Probe /health and both relay endpoints once",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().LoadFlags(cmd.Flags(), nil)
			if err != nil {
				return err
			}
			timeout := defaultProbeTimeout
			if cmd.Flags().Changed("timeout") {
				timeout = cfg.Timeout
			}

			client := httpclient.NewClient(timeout, true)
			defer client.CloseIdleConnections()

			fmt.Fprintf(s.out, "Checking %s\n", cfg.BaseAddr())
			results := preflight.New(cfg.BaseAddr(), client).Run(cmd.Context())
			if !preflight.Print(s.out, results) {
				return errors.New("preflight check failed")
			}
			return nil
		},
	}
	config.RegisterCheckFlags(cmd)
	return cmd
}

func runLoad(ctx context.Context, cfg *config.Config, s streams) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	planned := cfg.PlannedRequests()
	if confirm.Required(planned, cfg.ConfirmAbove, cfg.AssumeYes) {
		if err := confirm.Ask(ctx, s.in, s.err, confirmPrompt(cfg, planned)); err != nil {
			return err
		}
	}

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), tracingFlushDeadline)
		defer cancel()
		if err := provider.Shutdown(flushCtx); err != nil {
			fmt.Fprintf(s.err, "[relayload] tracing shutdown: %v\n", err)
		}
	}()

	out := &lockedWriter{w: s.out}
	textOutput := cfg.Output == config.OutputText
	live := textOutput && !cfg.Dashboard

	if live {
		output.PrintBanner(out, *cfg)
	}

	var recorders []runner.Recorder
	if live && !cfg.Quiet {
		recorders = append(recorders, output.NewRequestPrinter(out))
	}
	recorder := runner.Tee(recorders...)
	if cfg.LogErrors {
		recorder = runner.WithFailureLogging(recorder, &stderrFailureLogger{w: s.err})
	}

	var httpOpts []httpclient.Option
	if provider.Enabled() {
		httpOpts = append(httpOpts, httpclient.WithTracer(provider.Tracer(), provider.ShouldPropagate()))
	}

	collector := metrics.NewCollector()
	r, err := runner.Start(ctx, runner.Options{
		Config:      runnerConfig(cfg),
		HTTPOptions: httpOpts,
		Collector:   collector,
		Recorder:    recorder,
	})
	if err != nil {
		return err
	}

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(collector, r, dashboardConfig(cfg), r.Cancel)
		if err != nil {
			r.Cancel()
			r.Wait()
			return err
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if live {
		progress = output.NewProgressReporter(collector, r.InFlight, progressInterval, out)
		progress.Start()
	}

	<-r.Draining()
	if live {
		if n := r.InFlight(); n > 0 {
			fmt.Fprintf(out, "\nAll requests issued. Waiting for %d final requests to complete...\n", n)
		}
	}
	summary := r.Wait()

	if progress != nil {
		progress.Stop()
	}
	if dash != nil {
		dash.Stop()
	}

	if summary.Interrupted {
		fmt.Fprintln(s.err, "[relayload] run interrupted; the summary covers requests completed before shutdown")
	}
	// Request failures are results, not errors: the exit status stays zero.
	return output.Write(out, cfg.Output, summary, cfg.Endpoint)
}

func runnerConfig(cfg *config.Config) runner.Config {
	mode := runner.ModeBurst
	if cfg.Sustained() {
		mode = runner.ModeSustained
	}
	return runner.Config{
		TargetURL:         cfg.TargetURL(),
		Method:            cfg.Method,
		Headers:           cfg.Headers,
		Body:              cfg.Body,
		BodyFile:          cfg.BodyFile,
		Mode:              mode,
		Concurrency:       cfg.Count,
		Duration:          cfg.Duration,
		RequestTimeout:    cfg.Timeout,
		TickInterval:      cfg.Tick,
		MaxBatch:          cfg.MaxBatch,
		MaxInFlight:       cfg.MaxInFlight,
		DrainGrace:        cfg.Drain,
		DisableKeepAlives: cfg.NoKeepAlive,
	}
}

func dashboardConfig(cfg *config.Config) dashboard.RunConfig {
	return dashboard.RunConfig{
		Target:      cfg.TargetURL(),
		Endpoint:    string(cfg.Endpoint),
		Method:      cfg.Method,
		Sustained:   cfg.Sustained(),
		Count:       cfg.Count,
		BatchSize:   cfg.BatchSize(),
		Tick:        cfg.Tick,
		Duration:    cfg.Duration,
		Timeout:     cfg.Timeout,
		Planned:     cfg.PlannedRequests(),
		MaxInFlight: cfg.MaxInFlight,
		ConfigFile:  cfg.ConfigFile,
	}
}

func confirmPrompt(cfg *config.Config, planned int) confirm.Prompt {
	details := []string{"Target: " + cfg.TargetURL()}
	if cfg.Sustained() {
		details = append(details, fmt.Sprintf("%d requests every %s for %s", cfg.BatchSize(), cfg.Tick, cfg.Duration))
	} else {
		details = append(details, fmt.Sprintf("%d requests at once", cfg.Count))
	}
	details = append(details, fmt.Sprintf("Threshold: --confirm-above %d (use --yes to skip this prompt)", cfg.ConfirmAbove))
	return confirm.Prompt{
		Title:   fmt.Sprintf("This run plans %d requests. Start it?", planned),
		Details: details,
	}
}

func (l *stderrFailureLogger) LogFailure(o metrics.Outcome) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if o.HasStatus() {
		fmt.Fprintf(l.w, "[relayload] request %d failed: HTTP %d after %.2fs\n", o.Sequence, o.StatusCode, o.Duration.Seconds())
		return
	}
	detail := o.Detail
	if detail == "" {
		detail = metrics.FriendlyErrorName(o.Error)
	}
	fmt.Fprintf(l.w, "[relayload] request %d failed (%s): %s\n", o.Sequence, o.Error, detail)
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}
