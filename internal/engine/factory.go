package engine

import (
	"fmt"
	"strings"

	"apiprobe/internal/protocol"
)

// Configuration keys read by OptionsFromConfig.
const (
	KeyFeatures      = "harness.features"
	KeyTags          = "harness.tags"
	KeyFormat        = "harness.format"
	KeyConcurrency   = "harness.concurrency"
	KeyStrict        = "harness.strict"
	KeyStopOnFailure = "harness.stop-on-failure"
	KeyRandomize     = "harness.randomize"
	KeyReportDir     = "harness.report-dir"
	KeyReporter      = "harness.reporter"
	KeyMetricsAddr   = "harness.metrics-addr"
)

// Reporter names.
const (
	ReporterConsole = "console"
	ReporterQuiet   = "quiet"
	ReporterNone    = "none"
)

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Paths:       []string{"features"},
		Format:      "pretty",
		Concurrency: 1,
		Strict:      true,
		Reporter:    ReporterConsole,
	}
}

// OptionsFromConfig builds options from the harness.* configuration keys,
// falling back to DefaultOptions.
func OptionsFromConfig(cfg protocol.Config) (Options, error) {
	opts := DefaultOptions()
	if cfg == nil {
		return opts, nil
	}

	if features := splitList(cfg.String(KeyFeatures, "")); len(features) > 0 {
		opts.Paths = features
	}
	opts.Tags = cfg.String(KeyTags, opts.Tags)
	opts.Format = cfg.String(KeyFormat, opts.Format)
	opts.ReportDir = cfg.String(KeyReportDir, opts.ReportDir)
	opts.Reporter = cfg.String(KeyReporter, opts.Reporter)

	var err error
	if opts.Concurrency, err = cfg.Int(KeyConcurrency, opts.Concurrency); err != nil {
		return opts, err
	}
	if opts.Strict, err = cfg.Bool(KeyStrict, opts.Strict); err != nil {
		return opts, err
	}
	if opts.StopOnFailure, err = cfg.Bool(KeyStopOnFailure, opts.StopOnFailure); err != nil {
		return opts, err
	}
	if opts.Randomize, err = cfg.Int64(KeyRandomize, opts.Randomize); err != nil {
		return opts, err
	}
	return opts, nil
}

// ValidateOptions checks options before a run.
func ValidateOptions(opts Options) error {
	if opts.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", opts.Concurrency)
	}
	if opts.Format == "" {
		return fmt.Errorf("format must not be empty")
	}
	switch opts.Reporter {
	case "", ReporterConsole, ReporterQuiet, ReporterNone:
	default:
		return fmt.Errorf("unknown reporter %q (want %s, %s or %s)", opts.Reporter, ReporterConsole, ReporterQuiet, ReporterNone)
	}
	return nil
}

// splitList accepts "a,b" and the "[a, b]" form YAML lists are flattened to.
func splitList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
