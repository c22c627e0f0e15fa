package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"apiprobe/internal/engine"
	"apiprobe/pkg/logging"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type runFlags struct {
	tags          string
	format        string
	concurrency   int
	strict        bool
	stopOnFailure bool
	randomize     int64
	noColors      bool
	verbose       bool
	reporter      string
	reportDir     string
	metricsAddr   string
	timeout       time.Duration
}

func newRunCmd(root *rootOptions) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [paths...]",
		Short: "Run feature files",
		Long: `Run executes the scenarios of the given feature files or directories
(default: harness.features, then ./features).

Each scenario gets a fresh request, response and value store. Protocol
clients are created once per run and shared by all scenarios.

Exit codes:
  0  all scenarios passed
  1  at least one scenario failed
  2  the suite could not run (bad configuration, unreadable features)

Example usage:
  apiprobe run                                   # Run ./features
  apiprobe run features/users.feature            # Run one file
  apiprobe run --tags "@smoke && ~@wip"          # Filter by tags
  apiprobe run --env qa --set rest.timeout-ms=5000
  apiprobe run --format cucumber:report.json     # Cucumber JSON output
  apiprobe run --concurrency 4 --reporter quiet  # Parallel, CI friendly`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeatures(cmd, root, f, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.tags, "tags", "t", "", "Tag expression to filter scenarios")
	flags.StringVarP(&f.format, "format", "f", "pretty", "godog formatter (pretty, progress, cucumber, junit, events), optionally name:file")
	flags.IntVarP(&f.concurrency, "concurrency", "c", 1, "Number of scenarios run in parallel")
	flags.BoolVar(&f.strict, "strict", true, "Fail scenarios with undefined or pending steps")
	flags.BoolVar(&f.stopOnFailure, "stop-on-failure", false, "Stop at the first failing scenario")
	flags.Int64Var(&f.randomize, "randomize", 0, "Randomize scenario order with this seed (-1 picks one)")
	flags.BoolVar(&f.noColors, "no-colors", false, "Disable colored output")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "Print every step in the summary reporter")
	flags.StringVar(&f.reporter, "reporter", engine.ReporterConsole, "Summary reporter (console, quiet, none)")
	flags.StringVar(&f.reportDir, "report-dir", "", "Directory for the JSON run report")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")
	flags.DurationVar(&f.timeout, "timeout", 0, "Overall run timeout (0 means none)")

	return cmd
}

func runFeatures(cmd *cobra.Command, root *rootOptions, f *runFlags, args []string) error {
	resolver, resources, err := root.loadConfig()
	if err != nil {
		return err
	}

	opts, err := engine.OptionsFromConfig(resolver)
	if err != nil {
		return err
	}
	f.apply(cmd, &opts)
	if len(args) > 0 {
		opts.Paths = args
	}
	opts.Resources = resources
	opts.Output = cmd.OutOrStdout()
	opts.Summary = cmd.OutOrStdout()

	e, err := engine.New(opts, resolver)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	metricsAddr := f.metricsAddr
	if !cmd.Flags().Changed("metrics-addr") {
		metricsAddr = resolver.String(engine.KeyMetricsAddr, "")
	}
	if metricsAddr != "" {
		srv := serveMetrics(metricsAddr, e.Gatherer())
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	result, err := e.Run(ctx)
	if err != nil {
		return err
	}
	if result.ExitCode != engine.ExitPassed {
		return &ExitError{
			Code: result.ExitCode,
			Err:  fmt.Errorf("%d of %d scenarios failed", result.Failed, result.Total),
		}
	}
	return nil
}

// apply copies the flags the user set over the configured options.
func (f *runFlags) apply(cmd *cobra.Command, opts *engine.Options) {
	flags := cmd.Flags()
	if flags.Changed("tags") {
		opts.Tags = f.tags
	}
	if flags.Changed("format") {
		opts.Format = f.format
	}
	if flags.Changed("concurrency") {
		opts.Concurrency = f.concurrency
	}
	if flags.Changed("strict") {
		opts.Strict = f.strict
	}
	if flags.Changed("stop-on-failure") {
		opts.StopOnFailure = f.stopOnFailure
	}
	if flags.Changed("randomize") {
		opts.Randomize = f.randomize
	}
	if flags.Changed("reporter") {
		opts.Reporter = f.reporter
	}
	if flags.Changed("report-dir") {
		opts.ReportDir = f.reportDir
	}
	opts.NoColors = f.noColors
	opts.Verbose = f.verbose
}

func serveMetrics(addr string, gatherer prometheus.Gatherer) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("cmd", err, "Metrics server on %s stopped", addr)
		}
	}()
	logging.Info("cmd", "Serving metrics on %s/metrics", addr)
	return srv
}
