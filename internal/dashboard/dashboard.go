package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/relayload/internal/metrics"
)

const historySize = 100

// RunConfig holds the run parameters shown in the summary panel.
type RunConfig struct {
	Target      string
	Endpoint    string // sync or async
	Method      string
	Sustained   bool
	Count       int // burst size, or requests per tick
	BatchSize   int
	Tick        time.Duration
	Duration    time.Duration
	Timeout     time.Duration
	Planned     int
	MaxInFlight int
	ConfigFile  string
}

// RunState reports live issuance counters. *runner.Run implements it.
type RunState interface {
	Issued() int64
	InFlight() int64
}

// Dashboard renders a live terminal UI for a relay load run.
type Dashboard struct {
	collector    *metrics.Collector
	state        RunState
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	progressGauge  *widgets.Gauge
	metricsPara    *widgets.Paragraph
	latencySparkle *widgets.SparklineGroup
	histogramChart *widgets.BarChart
	statusList     *widgets.List
	latencyHistory []float64
	startTime      time.Time
	cfg            RunConfig
}

// New initializes the terminal. shutdownFunc is called when the user presses
// q or Ctrl-C.
func New(collector *metrics.Collector, state RunState, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		collector:      collector,
		state:          state,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, historySize),
		startTime:      time.Now(),
		cfg:            cfg,
	}

	d.initWidgets()
	d.setupGrid()
	return d, nil
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Progress"
	d.progressGauge.BarColor = ui.ColorBlue
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Outcomes"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan

	sparkline := widgets.NewSparkline()
	sparkline.Title = "Mean latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}
	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.histogramChart = widgets.NewBarChart()
	d.histogramChart.Title = "Duration Histogram"
	d.histogramChart.Labels = metrics.BucketLabels()
	d.histogramChart.Data = make([]float64, metrics.BucketCount)
	d.histogramChart.BarWidth = 8
	d.histogramChart.BarColors = []ui.Color{ui.ColorGreen, ui.ColorYellow, ui.ColorMagenta, ui.ColorRed}
	d.histogramChart.BorderStyle.Fg = ui.ColorCyan

	d.statusList = widgets.NewList()
	d.statusList.Title = "Status Buckets"
	d.statusList.Rows = []string{"Awaiting responses"}
	d.statusList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.statusList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)
	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.progressGauge),
		),
		ui.NewRow(0.35,
			ui.NewCol(0.4, d.metricsPara),
			ui.NewCol(0.6, d.latencySparkle),
		),
		ui.NewRow(0.35,
			ui.NewCol(0.6, d.histogramChart),
			ui.NewCol(0.4, d.statusList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the update loop and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Keep rendering while the run drains; Stop ends the loop.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	snap := d.collector.Snapshot()

	var issued, inFlight int64
	if d.state != nil {
		issued = d.state.Issued()
		inFlight = d.state.InFlight()
	}

	d.summaryPara.Text = fmt.Sprintf("Target: %s\n%s\nElapsed: %s",
		d.cfg.Target, formatRunParams(d.cfg), elapsed.Round(time.Second))

	percent := progressPercent(d.cfg, elapsed, snap.Total)
	d.progressGauge.Percent = percent
	d.progressGauge.Label = fmt.Sprintf("%d%% | issued %d | done %d | in flight %d", percent, issued, snap.Total, inFlight)

	rate := 0.0
	if elapsed > 0 {
		rate = float64(snap.Total) / elapsed.Seconds()
	}
	successRate := 0.0
	if snap.Total > 0 {
		successRate = float64(snap.Successes) / float64(snap.Total) * 100
	}
	d.metricsPara.Text = fmt.Sprintf(
		"Completed:         %d\nSuccessful:        %d\nFailed:            %d\nSuccess Rate:      %.1f%%\nRequests/sec:      %.2f\nMean Latency:      %.2fs\nMax Latency:       %.2fs",
		snap.Total,
		snap.Successes,
		snap.Failures,
		successRate,
		rate,
		snap.MeanLatency.Seconds(),
		snap.MaxLatency.Seconds(),
	)

	if snap.Successes > 0 {
		meanMs := float64(snap.MeanLatency) / float64(time.Millisecond)
		d.latencyHistory = appendHistory(d.latencyHistory, meanMs, historySize)
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf("Latency | Mean: %.0fms | Max: %.0fms",
			meanMs, float64(snap.MaxLatency)/float64(time.Millisecond))
	}

	d.histogramChart.Data = bucketData(snap.Buckets)
	d.statusList.Rows = formatStatusListRows(snap.Codes, snap.Classes)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

// progressPercent estimates completion: elapsed time for sustained runs,
// completed requests for bursts.
func progressPercent(cfg RunConfig, elapsed time.Duration, completed int64) int {
	var pct float64
	switch {
	case cfg.Sustained && cfg.Duration > 0:
		pct = float64(elapsed) / float64(cfg.Duration) * 100
	case cfg.Count > 0:
		pct = float64(completed) / float64(cfg.Count) * 100
	}
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return int(pct)
}

func appendHistory(history []float64, value float64, limit int) []float64 {
	history = append(history, value)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

func bucketData(counts [metrics.BucketCount]int64) []float64 {
	data := make([]float64, len(counts))
	for i, c := range counts {
		data[i] = float64(c)
	}
	return data
}

func formatStatusListRows(codes map[int]int64, classes map[string]int64) []string {
	rows := metrics.FlattenStatusBuckets(codes, classes)
	if len(rows) == 0 {
		return []string{"[Awaiting responses](fg:green)"}
	}
	if len(rows) > 10 {
		rows = rows[:10]
	}
	formatted := make([]string, 0, len(rows))
	for _, row := range rows {
		switch {
		case row.Kind == "status" && row.Code == "200":
			formatted = append(formatted, fmt.Sprintf("[HTTP %s](fg:green) %d", row.Code, row.Count))
		case row.Kind == "status":
			formatted = append(formatted, fmt.Sprintf("[HTTP %s](fg:red) %d", row.Code, row.Count))
		default:
			formatted = append(formatted, fmt.Sprintf("[%s](fg:red) %d", metrics.FriendlyErrorName(row.Code), row.Count))
		}
	}
	return formatted
}

func formatRunParams(cfg RunConfig) string {
	var parts []string

	if cfg.Endpoint != "" {
		parts = append(parts, "Endpoint: "+cfg.Endpoint)
	}
	if cfg.Method != "" {
		parts = append(parts, "Method: "+cfg.Method)
	}
	if cfg.Sustained {
		parts = append(parts, fmt.Sprintf("Sustained: %d every %s for %s", cfg.BatchSize, cfg.Tick, cfg.Duration))
	} else {
		parts = append(parts, fmt.Sprintf("Burst: %d", cfg.Count))
	}
	if cfg.Planned > 0 {
		parts = append(parts, fmt.Sprintf("Planned: %d", cfg.Planned))
	}
	if cfg.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", cfg.Timeout))
	}
	if cfg.MaxInFlight > 0 {
		parts = append(parts, fmt.Sprintf("Max in flight: %d", cfg.MaxInFlight))
	}
	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}
	return strings.Join(parts, " | ")
}
