// Package output renders load-test progress and the final report to the
// console or as JSON.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/wesleyorama2/libload/internal/performance/engine"
	"github.com/wesleyorama2/libload/internal/performance/metrics"
)

const ruleWidth = 64

// ColorScheme defines the colors used for different elements in the output.
type ColorScheme struct {
	Title     *color.Color
	Rule      *color.Color
	Label     *color.Color
	Value     *color.Color
	Latency   *color.Color
	Success   *color.Color
	Warn      *color.Color
	Error     *color.Color
	Dim       *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:     color.New(color.Bold),
		Rule:      color.New(color.FgCyan),
		Label:     color.New(color.Bold),
		Value:     color.New(color.FgCyan),
		Latency:   color.New(color.FgBlue),
		Success:   color.New(color.FgGreen),
		Warn:      color.New(color.FgYellow),
		Error:     color.New(color.FgRed),
		Dim:       color.New(color.Faint),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{s.Title, s.Rule, s.Label, s.Value, s.Latency, s.Success, s.Warn, s.Error, s.Dim, s.Highlight}
}

// Console writes human-readable progress lines and the end-of-run report.
type Console struct {
	mu     sync.Mutex
	writer io.Writer
	colors *ColorScheme
	quiet  bool
}

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	// Writer defaults to os.Stdout.
	Writer io.Writer

	// NoColor disables colors even on a terminal.
	NoColor bool

	// ForceColors enables colors even when Writer is not a terminal.
	ForceColors bool

	// Quiet prints only the final PASSED/FAILED line.
	Quiet bool
}

// NewConsole creates a console renderer. Colors are used when the writer is
// a terminal and NO_COLOR is not set, unless overridden by the config.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	useColors := cfg.ForceColors || (!cfg.NoColor && isTerminal(cfg.Writer) && os.Getenv("NO_COLOR") == "")

	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		if useColors {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	return &Console{writer: cfg.Writer, colors: scheme, quiet: cfg.Quiet}
}

// isTerminal checks if the writer is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// PrintHeader prints the test name and scenario count before the run.
func (c *Console) PrintHeader(name string, scenarios []string) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rule := strings.Repeat("━", ruleWidth)
	c.writeln(c.colors.Rule.Sprint(rule))
	c.writeln(c.colors.Title.Sprintf("%s - Running [%d scenarios]", name, len(scenarios)))
	c.writeln(c.colors.Dim.Sprint(strings.Join(scenarios, ", ")))
	c.writeln(c.colors.Rule.Sprint(rule))
}

// PrintProgress prints a one-line status update from a live snapshot.
func (c *Console) PrintProgress(snap *metrics.Snapshot) {
	if c.quiet || snap == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	g := snap.Global
	rate := g.FailureRate()
	c.writeln(fmt.Sprintf("[%s] Reqs: %s | RPS: %.1f | Errors: %s | Dropped: %d | P95: %s",
		formatDuration(snap.Elapsed),
		formatNumber(g.Requests),
		snap.RPS(),
		c.rateColor(rate).Sprintf("%d (%.1f%%)", g.Failures, rate*100),
		g.Dropped,
		formatDurationShort(g.Latency.P95)))
}

// PrintReport prints the end-of-run summary.
func (c *Console) PrintReport(name string, report *engine.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.quiet {
		c.writeln(c.verdict(report.Passed))
		return
	}

	rule := strings.Repeat("━", ruleWidth)
	status := c.colors.Success.Sprint("Completed ✓")
	if !report.Passed {
		status = c.colors.Error.Sprint("Failed ✗")
	}

	c.writeln("")
	c.writeln(c.colors.Rule.Sprint(rule))
	c.writeln(fmt.Sprintf("%s - %s", c.colors.Title.Sprint(name), status))
	c.writeln(c.colors.Rule.Sprint(rule))
	c.writeln("")

	c.writeln(fmt.Sprintf("Run ID:        %s", c.colors.Dim.Sprint(report.RunID)))
	c.writeln(fmt.Sprintf("Duration:      %s", c.colors.Value.Sprint(formatDuration(report.Duration))))
	if len(report.Setup) > 0 {
		keys := make([]string, 0, len(report.Setup))
		for key := range report.Setup {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, key := range keys {
			parts[i] = fmt.Sprintf("%d %s", report.Setup[key], key)
		}
		c.writeln(fmt.Sprintf("Setup:         %s", c.colors.Value.Sprint(strings.Join(parts, ", "))))
	}

	if report.Metrics != nil {
		g := report.Metrics.Global
		c.writeln(fmt.Sprintf("Total Reqs:    %s (%.1f/s)", c.colors.Value.Sprint(formatNumber(g.Requests)), report.Metrics.RPS()))
		success := 1 - g.FailureRate()
		c.writeln(fmt.Sprintf("Success Rate:  %s", c.rateColor(1-success).Sprintf("%.1f%%", success*100)))
		c.writeln(fmt.Sprintf("Data Received: %s", c.colors.Value.Sprint(formatBytes(g.Bytes))))
		c.writeln("")

		c.printScenarios(report)
		c.printLatency(g)
		c.printStatusCodes(g)
		c.printChecks(g)
		c.printRequests(report.Metrics.Requests)
	}

	if len(report.Thresholds) > 0 {
		c.writeln(c.colors.Label.Sprint("Thresholds:"))
		for _, t := range report.Thresholds {
			mark := c.colors.Success.Sprint("✓")
			if !t.Passed {
				mark = c.colors.Error.Sprint("✗")
			}
			line := fmt.Sprintf("  %s %s %s (actual: %s)", mark, t.Metric, t.Expression, t.Value)
			if t.Message != "" && !t.Passed {
				line += c.colors.Dim.Sprintf(" %s", t.Message)
			}
			c.writeln(line)
		}
		c.writeln("")
	}

	if report.Aborted {
		c.writeln(c.colors.Error.Sprintf("Aborted: %s", report.AbortReason))
	}
	if report.TeardownError != "" {
		c.writeln(c.colors.Warn.Sprintf("Teardown failed: %s", report.TeardownError))
	}
	c.writeln(c.verdict(report.Passed))
}

func (c *Console) printScenarios(report *engine.Report) {
	if len(report.Scenarios) == 0 {
		return
	}

	c.writeln(c.colors.Label.Sprint("Scenarios:"))
	c.writeln(c.colors.Dim.Sprintf("  %-20s %-22s %8s %8s %7s %7s %9s",
		"name", "executor", "started", "done", "failed", "dropped", "peak VUs"))
	for _, s := range report.Scenarios {
		dropped := fmt.Sprintf("%7d", s.Dropped)
		if s.Dropped > 0 {
			dropped = c.colors.Warn.Sprint(dropped)
		}
		failed := fmt.Sprintf("%7d", s.Failed)
		if s.Failed > 0 {
			failed = c.colors.Error.Sprint(failed)
		}
		c.writeln(fmt.Sprintf("  %-20s %-22s %8d %8d %s %s %5d/%-3d",
			s.Scenario, s.Executor, s.Started, s.Completed, failed, dropped, s.PeakVUs, s.MaxVUs))
		if s.Interrupted > 0 {
			c.writeln(c.colors.Warn.Sprintf("  %-20s %d iterations interrupted after gracefulStop", "", s.Interrupted))
		}
	}

	if report.Metrics != nil {
		var lagging []string
		for _, s := range report.Scenarios {
			st, ok := report.Metrics.Scenarios[s.Scenario]
			if ok && st.Overshoots > 0 {
				lagging = append(lagging, fmt.Sprintf("%s (%d, max %s)", s.Scenario, st.Overshoots, formatDurationShort(st.MaxLag)))
			}
		}
		if len(lagging) > 0 {
			c.writeln(c.colors.Warn.Sprintf("  late dispatch: %s", strings.Join(lagging, ", ")))
		}
	}
	c.writeln("")
}

func (c *Console) printLatency(g metrics.Stats) {
	if g.Latency.Count == 0 {
		return
	}

	c.writeln(c.colors.Label.Sprint("Latency Distribution:"))
	rows := []struct {
		label string
		value time.Duration
	}{
		{"Min", g.Latency.Min},
		{"Avg", g.Latency.Mean},
		{"P50", g.Latency.P50},
		{"P90", g.Latency.P90},
		{"P95", g.Latency.P95},
		{"P99", g.Latency.P99},
		{"Max", g.Latency.Max},
	}
	for _, row := range rows {
		c.writeln(fmt.Sprintf("  %-10s %s", row.label+":", c.colors.Latency.Sprint(formatDurationShort(row.value))))
	}
	c.writeln("")
}

func (c *Console) printStatusCodes(g metrics.Stats) {
	if len(g.StatusCodes) == 0 && len(g.ErrorKinds) == 0 {
		return
	}

	c.writeln(c.colors.Label.Sprint("Responses:"))
	codes := make([]int, 0, len(g.StatusCodes))
	for code := range g.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		col := c.colors.Success
		switch {
		case code >= 500:
			col = c.colors.Error
		case code >= 400:
			col = c.colors.Warn
		}
		c.writeln(fmt.Sprintf("  %s %s", col.Sprintf("%d", code), formatNumber(g.StatusCodes[code])))
	}

	kinds := make([]string, 0, len(g.ErrorKinds))
	for kind := range g.ErrorKinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		c.writeln(fmt.Sprintf("  %s %s", c.colors.Error.Sprint(kind), formatNumber(g.ErrorKinds[kind])))
	}
	c.writeln("")
}

func (c *Console) printChecks(g metrics.Stats) {
	if len(g.Checks) == 0 {
		return
	}

	c.writeln(c.colors.Label.Sprint("Checks:"))
	names := make([]string, 0, len(g.Checks))
	for name := range g.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cs := g.Checks[name]
		mark := c.colors.Success.Sprint("✓")
		if cs.Fails > 0 {
			mark = c.colors.Error.Sprint("✗")
		}
		c.writeln(fmt.Sprintf("  %s %s %s", mark, name, c.colors.Dim.Sprintf("(%d passed, %d failed)", cs.Passes, cs.Fails)))
	}
	c.writeln("")
}

func (c *Console) printRequests(requests map[string]metrics.LatencyStats) {
	if len(requests) == 0 {
		return
	}

	c.writeln(c.colors.Label.Sprint("Requests:"))
	c.writeln(c.colors.Dim.Sprintf("  %-24s %8s %9s %9s %9s", "name", "count", "avg", "p95", "max"))
	names := make([]string, 0, len(requests))
	for name := range requests {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		l := requests[name]
		c.writeln(fmt.Sprintf("  %-24s %8d %9s %9s %9s", name, l.Count,
			formatDurationShort(l.Mean), formatDurationShort(l.P95), formatDurationShort(l.Max)))
	}
	c.writeln("")
}

func (c *Console) verdict(passed bool) string {
	if passed {
		return c.colors.Success.Sprint("PASSED")
	}
	return c.colors.Error.Sprint("FAILED")
}

func (c *Console) rateColor(failureRate float64) *color.Color {
	switch {
	case failureRate > 0.05:
		return c.colors.Error
	case failureRate > 0.01:
		return c.colors.Warn
	default:
		return c.colors.Success
	}
}

// writeln writes to the output with a newline.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatDurationShort formats a latency.
func formatDurationShort(d time.Duration) string {
	if d < time.Microsecond {
		return "0ms"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
