package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"apiprobe/internal/protocol"
	"apiprobe/internal/protocol/builtin"
	"apiprobe/internal/scenario"
	"apiprobe/internal/steps"
	"apiprobe/pkg/logging"

	"github.com/cucumber/godog"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// godog's status for invalid options or unreadable features.
const godogOptionError = 2

// Engine runs feature files. Create one per run.
type Engine struct {
	opts      Options
	cfg       protocol.Config
	resources fs.FS
	registry  *protocol.Registry
	stats     *Stats
	metrics   *Metrics
	gatherer  *prometheus.Registry
	runID     string
}

// New validates opts and builds the state shared by every scenario: the
// protocol registry with the built-in catalogue and any aliases from the
// descriptor file, the statistics collector and the metrics.
func New(opts Options, cfg protocol.Config) (*Engine, error) {
	if err := ValidateOptions(opts); err != nil {
		return nil, err
	}
	if len(opts.Paths) == 0 {
		opts.Paths = DefaultOptions().Paths
	}
	if opts.Reporter == "" {
		opts.Reporter = ReporterConsole
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Summary == nil {
		opts.Summary = os.Stdout
	}

	resources := opts.Resources
	if resources == nil {
		resources = os.DirFS(".")
	}

	gatherer := opts.Metrics
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}

	registry := protocol.NewRegistry(cfg, builtin.Catalogue())
	registry.SetMetrics(protocol.NewMetrics(gatherer))
	if err := registry.ApplyDescriptorFile(resources); err != nil {
		return nil, fmt.Errorf("failed to load protocol descriptors: %w", err)
	}

	return &Engine{
		opts:      opts,
		cfg:       cfg,
		resources: resources,
		registry:  registry,
		stats:     NewStats(),
		metrics:   NewMetrics(gatherer),
		gatherer:  gatherer,
		runID:     uuid.NewString(),
	}, nil
}

// RunID identifies this run in logs and reports.
func (e *Engine) RunID() string { return e.runID }

// Registry returns the shared protocol registry.
func (e *Engine) Registry() *protocol.Registry { return e.registry }

// Gatherer returns the Prometheus registry holding the run's collectors.
func (e *Engine) Gatherer() *prometheus.Registry { return e.gatherer }

// Stats returns the response-time statistics of the run.
func (e *Engine) Stats() *Stats { return e.stats }

func (e *Engine) reporters() []Reporter {
	switch e.opts.Reporter {
	case ReporterQuiet:
		return []Reporter{NewQuietReporter(e.opts.Summary)}
	case ReporterNone:
		return nil
	default:
		return []Reporter{NewConsoleReporter(e.opts.Summary, e.opts.Verbose, e.opts.NoColors)}
	}
}

// Run executes the suite. The returned error is only set when the suite
// could not run at all; failing scenarios are reported through the result.
// Cancelling ctx fails the step about to start and skips the rest.
func (e *Engine) Run(ctx context.Context) (*SuiteResult, error) {
	collector := newCollector()
	reporters := e.reporters()

	sinks := scenario.MultiSink{collector, e.metrics}
	for _, r := range reporters {
		sinks = append(sinks, r)
	}
	sinks = append(sinks, e.opts.Sinks...)
	hooks := scenario.Hooks{Sink: sinks}

	suite := godog.TestSuite{
		Name: "apiprobe",
		TestSuiteInitializer: func(tsc *godog.TestSuiteContext) {
			tsc.BeforeSuite(func() {
				logging.Info("engine", "Starting run %s (%v)", e.runID, e.opts.Paths)
			})
			tsc.AfterSuite(func() {
				e.registry.CloseAll()
			})
		},
		ScenarioInitializer: func(gsc *godog.ScenarioContext) {
			e.initScenario(ctx, gsc, hooks)
		},
		Options: &godog.Options{
			Format:         e.opts.Format,
			Paths:          e.opts.Paths,
			Tags:           e.opts.Tags,
			Concurrency:    e.opts.Concurrency,
			Strict:         e.opts.Strict,
			StopOnFailure:  e.opts.StopOnFailure,
			Randomize:      e.opts.Randomize,
			NoColors:       e.opts.NoColors,
			Output:         e.opts.Output,
			FS:             e.opts.Features,
			DefaultContext: ctx,
		},
	}

	start := time.Now()
	status := suite.Run()
	result := collector.result(e.runID, start, time.Now())
	result.Status = status
	result.Latency = e.stats.Summaries()
	result.ExitCode = exitCode(status, result)

	for _, r := range reporters {
		r.ReportSuiteResult(*result)
	}

	if e.opts.ReportDir != "" {
		path, err := WriteJSONReport(e.opts.ReportDir, *result)
		if err != nil {
			logging.Error("engine", err, "Failed to save JSON report")
		} else {
			logging.Info("engine", "JSON report saved to %s", path)
		}
	}

	logging.Info("engine", "Run %s finished: %d passed, %d failed, %d skipped (exit %d)",
		e.runID, result.Passed, result.Failed, result.Skipped, result.ExitCode)

	if status == godogOptionError {
		return result, fmt.Errorf("failed to run features %v", e.opts.Paths)
	}
	return result, nil
}

// initScenario wires a fresh scenario context and step library into one
// godog scenario.
func (e *Engine) initScenario(runCtx context.Context, gsc *godog.ScenarioContext, hooks scenario.Hooks) {
	sc := scenario.NewContext(e.cfg, e.registry,
		scenario.WithObserver(e.stats),
		scenario.WithResources(e.resources),
	)

	lib, err := steps.ForScenario(sc)
	if err != nil {
		gsc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
			return ctx, err
		})
		return
	}
	lib.Register(gsc)

	var stepStarted time.Time

	gsc.Before(func(ctx context.Context, p *godog.Scenario) (context.Context, error) {
		sc.SetInfo(scenarioInfo(p))
		hooks.Before(sc)
		return ctx, nil
	})

	gsc.StepContext().Before(func(ctx context.Context, _ *godog.Step) (context.Context, error) {
		stepStarted = time.Now()
		if err := runCtx.Err(); err != nil {
			return ctx, fmt.Errorf("run cancelled: %w", err)
		}
		return ctx, nil
	})

	gsc.StepContext().After(func(ctx context.Context, st *godog.Step, status godog.StepResultStatus, err error) (context.Context, error) {
		hooks.StepDone(sc, st.Text, stepStatus(status), err, time.Since(stepStarted))
		return ctx, nil
	})

	gsc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		attachments := hooks.After(sc, e.scenarioStatus(err), err)
		for _, a := range attachments {
			ctx = godog.Attach(ctx, godog.Attachment{Body: a.Body, FileName: a.Name, MediaType: a.MediaType})
		}
		return ctx, nil
	})
}

func scenarioInfo(p *godog.Scenario) scenario.Info {
	info := scenario.Info{ID: p.Id, Name: p.Name, URI: p.Uri}
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	for _, tag := range p.Tags {
		info.Tags = append(info.Tags, tag.Name)
	}
	return info
}

func stepStatus(s godog.StepResultStatus) scenario.Status {
	switch s {
	case godog.StepPassed:
		return scenario.StatusPassed
	case godog.StepSkipped:
		return scenario.StatusSkipped
	case godog.StepUndefined:
		return scenario.StatusUndefined
	case godog.StepPending:
		return scenario.StatusPending
	default:
		return scenario.StatusFailed
	}
}

// scenarioStatus maps the error godog hands to after-scenario hooks.
// Undefined and pending steps only fail the scenario in strict mode.
func (e *Engine) scenarioStatus(err error) scenario.Status {
	switch {
	case err == nil:
		return scenario.StatusPassed
	case errors.Is(err, godog.ErrSkip):
		return scenario.StatusSkipped
	case errors.Is(err, godog.ErrUndefined), errors.Is(err, godog.ErrPending):
		if e.opts.Strict {
			return scenario.StatusFailed
		}
		return scenario.StatusSkipped
	default:
		return scenario.StatusFailed
	}
}

func exitCode(status int, result *SuiteResult) int {
	switch {
	case status == godogOptionError:
		return ExitEngineError
	case status != 0 || result.Failed > 0:
		return ExitFailed
	default:
		return ExitPassed
	}
}
