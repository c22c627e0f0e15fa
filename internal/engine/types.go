package engine

import (
	"io"
	"io/fs"
	"time"

	"apiprobe/internal/scenario"

	"github.com/prometheus/client_golang/prometheus"
)

// Exit codes of a run.
const (
	ExitPassed      = 0
	ExitFailed      = 1
	ExitEngineError = 2
)

// Options controls a suite run.
type Options struct {
	// Paths are feature files or directories. Defaults to "features".
	Paths []string
	// Tags is a godog tag expression such as "@smoke && ~@wip".
	Tags string
	// Format is the godog formatter, optionally with an output file ("cucumber:report.json").
	Format string
	// Concurrency is the number of scenarios run in parallel.
	Concurrency int
	// Strict fails scenarios with undefined or pending steps.
	Strict        bool
	StopOnFailure bool
	// Randomize is the seed for scenario order. 0 keeps file order, -1 picks a seed.
	Randomize int64
	NoColors  bool

	// Resources is the resource root for config and request body files.
	// Nil means the current working directory.
	Resources fs.FS
	// Features is where Paths are resolved. Nil means the local filesystem.
	Features fs.FS

	// ReportDir receives a JSON report of the run when set.
	ReportDir string
	// Reporter selects the summary written to Summary: "console", "quiet" or "none".
	Reporter string
	Verbose  bool

	// Output receives godog formatter output. Defaults to os.Stdout.
	Output io.Writer
	// Summary receives reporter output. Defaults to os.Stdout.
	Summary io.Writer

	// Metrics receives the engine and protocol collectors. Nil creates a private registry.
	Metrics *prometheus.Registry
	// Sinks receive every event in addition to the built-in reporters.
	Sinks []scenario.Sink
}

// SuiteResult summarises a run.
type SuiteResult struct {
	RunID     string                    `json:"run_id"`
	StartTime time.Time                 `json:"start_time"`
	EndTime   time.Time                 `json:"end_time"`
	Duration  time.Duration             `json:"duration"`
	Total     int                       `json:"total_scenarios"`
	Passed    int                       `json:"passed_scenarios"`
	Failed    int                       `json:"failed_scenarios"`
	Skipped   int                       `json:"skipped_scenarios"`
	Scenarios []ScenarioResult          `json:"scenario_results"`
	Latency   map[string]LatencySummary `json:"latency,omitempty"`
	// Status is the raw godog status.
	Status   int `json:"godog_status"`
	ExitCode int `json:"exit_code"`
}

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	URI         string             `json:"uri,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
	Status      scenario.Status    `json:"status"`
	StartTime   time.Time          `json:"start_time"`
	Duration    time.Duration      `json:"duration"`
	Error       string             `json:"error,omitempty"`
	Steps       []StepResult       `json:"step_results"`
	Attachments []AttachmentResult `json:"attachments,omitempty"`
}

// StepResult is the outcome of one step.
type StepResult struct {
	Text     string          `json:"text"`
	Status   scenario.Status `json:"status"`
	Duration time.Duration   `json:"duration"`
	Error    string          `json:"error,omitempty"`
}

// AttachmentResult is an attachment rendered for reports.
type AttachmentResult struct {
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Body      string `json:"body"`
}

// Reporter receives events while the suite runs and the result at the end.
type Reporter interface {
	scenario.Sink
	ReportSuiteResult(result SuiteResult)
}
