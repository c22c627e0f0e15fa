package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"apiprobe/internal/scenario"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type consoleStyles struct {
	title  lipgloss.Style
	passed lipgloss.Style
	failed lipgloss.Style
	muted  lipgloss.Style
}

func newConsoleStyles(noColors bool) consoleStyles {
	if noColors {
		plain := lipgloss.NewStyle()
		return consoleStyles{title: plain, passed: plain, failed: plain, muted: plain}
	}
	return consoleStyles{
		title:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}),
		passed: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#007700", Dark: "#7CFC00"}),
		failed: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B30000", Dark: "#FF6B6B"}).Bold(true),
		muted:  lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#606060", Dark: "#909090"}).Italic(true),
	}
}

// consoleReporter prints a human readable summary.
type consoleReporter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
	colors  bool
	styles  consoleStyles
}

// NewConsoleReporter creates a reporter that prints scenario results as they
// finish (verbose only) and a summary with latency percentiles at the end.
func NewConsoleReporter(w io.Writer, verbose, noColors bool) Reporter {
	return &consoleReporter{w: w, verbose: verbose, colors: !noColors, styles: newConsoleStyles(noColors)}
}

func (r *consoleReporter) Publish(e scenario.Event) {
	if !r.verbose {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e.Kind {
	case scenario.ScenarioStarted:
		fmt.Fprintf(r.w, "%s %s\n", r.styles.muted.Render("▶"), e.Scenario.Name)
	case scenario.StepFinished:
		line := fmt.Sprintf("   %s %s (%v)", r.symbol(e.Status), e.Step, e.Duration.Round(time.Millisecond))
		fmt.Fprintln(r.w, line)
		if e.Err != nil {
			fmt.Fprintf(r.w, "     %s\n", r.styles.failed.Render(e.Err.Error()))
		}
	case scenario.ScenarioFinished:
		fmt.Fprintf(r.w, "%s %s (%v)\n\n", r.symbol(e.Status), e.Scenario.Name, e.Duration.Round(time.Millisecond))
	}
}

func (r *consoleReporter) ReportSuiteResult(result SuiteResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, r.styles.title.Render("Test Suite Complete"))
	fmt.Fprintf(r.w, "Run:      %s\n", r.styles.muted.Render(result.RunID))
	fmt.Fprintf(r.w, "Duration: %v\n", result.Duration.Round(time.Millisecond))
	fmt.Fprintf(r.w, "Results:  %s, %s, %d skipped, %d total\n",
		r.styles.passed.Render(fmt.Sprintf("%d passed", result.Passed)),
		r.failedCount(result.Failed),
		result.Skipped,
		result.Total)

	successRate := 0.0
	if result.Total > 0 {
		successRate = float64(result.Passed) / float64(result.Total) * 100
	}
	fmt.Fprintf(r.w, "Success:  %.1f%%\n", successRate)

	for _, s := range result.Scenarios {
		if s.Status != scenario.StatusFailed {
			continue
		}
		fmt.Fprintf(r.w, "%s %s\n", r.symbol(s.Status), s.Name)
		if s.Error != "" {
			fmt.Fprintf(r.w, "   %s\n", r.styles.failed.Render(s.Error))
		}
	}

	if len(result.Latency) > 0 {
		fmt.Fprintln(r.w)
		r.renderLatency(result.Latency)
	}
}

func (r *consoleReporter) renderLatency(latency map[string]LatencySummary) {
	t := table.NewWriter()
	t.SetOutputMirror(r.w)
	t.SetStyle(table.StyleRounded)
	if !r.colors {
		t.SetStyle(table.StyleLight)
	}

	header := table.Row{"PROTOCOL", "REQUESTS", "MIN", "MEAN", "P50", "P90", "P95", "P99", "MAX"}
	if r.colors {
		for i, h := range header {
			header[i] = text.FgHiCyan.Sprint(h)
		}
	}
	t.AppendHeader(header)

	for _, name := range sortedKeys(latency) {
		l := latency[name]
		t.AppendRow(table.Row{
			name, l.Count,
			ms(l.Min), fmt.Sprintf("%.1fms", l.Mean), ms(l.P50), ms(l.P90), ms(l.P95), ms(l.P99), ms(l.Max),
		})
	}
	t.Render()
}

func (r *consoleReporter) failedCount(n int) string {
	s := fmt.Sprintf("%d failed", n)
	if n == 0 {
		return s
	}
	return r.styles.failed.Render(s)
}

func (r *consoleReporter) symbol(status scenario.Status) string {
	switch status {
	case scenario.StatusPassed:
		return r.styles.passed.Render("✔")
	case scenario.StatusFailed:
		return r.styles.failed.Render("✘")
	case scenario.StatusSkipped:
		return r.styles.muted.Render("-")
	default:
		return r.styles.muted.Render("?")
	}
}

func ms(v int64) string {
	return fmt.Sprintf("%dms", v)
}

// quietReporter prints failures and a one line summary, for CI logs.
type quietReporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewQuietReporter creates a reporter that only prints failures and a final count.
func NewQuietReporter(w io.Writer) Reporter {
	return &quietReporter{w: w}
}

func (r *quietReporter) Publish(e scenario.Event) {
	if e.Kind != scenario.ScenarioFinished || e.Status != scenario.StatusFailed {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "FAILED %s: %v\n", e.Scenario.Name, e.Err)
}

func (r *quietReporter) ReportSuiteResult(result SuiteResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if result.Failed == 0 {
		fmt.Fprintf(r.w, "All %d scenarios passed\n", result.Passed)
		return
	}
	fmt.Fprintf(r.w, "%d/%d scenarios failed\n", result.Failed, result.Total)
}

// WriteJSONReport saves result as <dir>/apiprobe-report-<timestamp>.json and
// returns the file path.
func WriteJSONReport(dir string, result SuiteResult) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	timestamp := result.StartTime.Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("apiprobe-report-%s.json", timestamp))

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}
	return path, nil
}

func sortedKeys(m map[string]LatencySummary) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
