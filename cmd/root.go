package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"apiprobe/internal/config"
	"apiprobe/pkg/logging"

	"github.com/spf13/cobra"
)

// rootOptions holds the flags shared by every command.
type rootOptions struct {
	debug     bool
	logLevel  string
	logFormat string
	env       string
	sets      []string
	resources string
}

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "apiprobe",
		Short: "Run Gherkin API test suites against REST, MCP and gRPC services",
		Long: `apiprobe executes Gherkin feature files against the APIs of a running
system. Steps drive protocol clients (REST, MCP tool calls, gRPC health),
store values between steps and assert on responses.

Configuration is read from config/application.yml and
config/application-<env>.yml under the resource root. Environment
variables (REST_BASE_URL for rest.base-url) and --set key=value override
the files.`,
		// SilenceUsage is set to true to prevent printing usage message on errors
		// handled by us (e.g. failing scenarios, unreadable config)
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.initLogging(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", string(logging.FormatText), "Log format (text, json)")
	flags.StringVar(&opts.env, "env", "", "Environment overlay to load (default: $ENV or dev)")
	flags.StringArrayVar(&opts.sets, "set", nil, "Override a configuration key (key=value, repeatable)")
	flags.StringVar(&opts.resources, "resources", ".", "Resource root holding config/ and request body files")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newStepsCmd())
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newProtocolsCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func (o *rootOptions) initLogging(cmd *cobra.Command) error {
	level, err := logging.ParseLevel(o.logLevel)
	if err != nil {
		return err
	}
	if o.debug {
		level = logging.LevelDebug
	}

	format := logging.Format(strings.ToLower(o.logFormat))
	switch format {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", o.logFormat)
	}

	logging.Init(level, format, cmd.ErrOrStderr())
	return nil
}

// overrides parses the --set flags.
func (o *rootOptions) overrides() (map[string]string, error) {
	out := make(map[string]string, len(o.sets))
	for _, s := range o.sets {
		key, value, ok := strings.Cut(s, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", s)
		}
		out[strings.TrimSpace(key)] = value
	}
	return out, nil
}

// loadConfig reads the configuration from the resource root.
func (o *rootOptions) loadConfig() (*config.Resolver, fs.FS, error) {
	overrides, err := o.overrides()
	if err != nil {
		return nil, nil, err
	}

	resources := os.DirFS(o.resources)
	resolver, err := config.Load(config.Options{
		Environment: o.env,
		Resources:   resources,
		Overrides:   overrides,
	})
	if err != nil {
		return nil, nil, err
	}
	return resolver, resources, nil
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v // Set cobra's version field as well
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Set up version template
	rootCmd.SetVersionTemplate(`{{printf "apiprobe version %s\n" .Version}}`)

	os.Exit(exitCode(rootCmd.Execute()))
}

// exitCode maps a command error to the process exit code: failing
// scenarios exit 1, everything else that went wrong exits 2.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 2
}
