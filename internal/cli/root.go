// Package cli implements the cobra command tree for elmdev.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/elmdev/internal/config"
	"github.com/hupe1980/elmdev/internal/logging"
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Execute builds the command tree, runs it until SIGINT or SIGTERM, and
// returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCommand()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)

		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return exitErr.Code
		}

		return 1
	}

	return 0
}

// NewRootCommand constructs the top-level cobra.Command with all
// subcommands attached.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "elmdev",
		Short: "Compile, serve and watch an Elm application",
		Long: `elmdev is the development loop for a single-page Elm application.

Without a subcommand it runs the default task: compile the source file
into the output directory, serve that directory over HTTP with request
logging, and recompile whenever the source changes. A failed compile is
reported and the loop keeps running.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd, cfgFile)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			logger := logging.SetupWithWriter(cfg, cmd.ErrOrStderr())

			ctx := cmd.Context()
			ctx = config.NewContext(ctx, cfg)
			ctx = logging.NewContext(ctx, logger)
			cmd.SetContext(ctx)

			logger.Debug("configuration loaded",
				slog.String("logLevel", cfg.LogLevel),
				slog.String("configFile", cfg.ConfigFile),
				slog.String("source", cfg.Source),
				slog.String("outDir", cfg.OutDir),
			)

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTasks(cmd, true, taskDefault)
		},
	}

	// Global persistent flags.
	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: .elmdev.yaml)")
	pf.String("log-level", config.LogLevelInfo, "log level: debug, info, warn, error")
	pf.String("log-format", config.LogFormatText, "log format: text, json")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")

	// Project flags.
	pf.StringP("source", "s", config.DefaultSource, "Elm source file to compile")
	pf.StringP("out-dir", "d", config.DefaultOutDir, "output directory, also served over HTTP")
	pf.String("output-name", "", "artifact file name (default: source stem + .js)")
	pf.String("compiler", config.DefaultCompiler, "compiler executable")
	pf.StringSlice("compiler-args", config.DefaultCompilerArgs, "compiler argument template ({src}, {out}, {outdir})")
	pf.String("compiler-version", "", "semver constraint the compiler version must satisfy")
	pf.StringP("addr", "a", config.DefaultAddr, "HTTP listen address")
	pf.String("request-log", config.RequestLogDev, "request log format: dev, tiny, short, common, combined, json, none")
	pf.Duration("debounce", config.DefaultDebounce, "quiet period before a change triggers a recompile")
	pf.StringSlice("watch-dirs", nil, "additional directories to watch recursively")
	pf.StringSlice("watch-ext", config.DefaultWatchExtensions, "file extensions watched inside --watch-dirs")

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Err: err}
	})

	cmd.AddCommand(
		newRunCommand(),
		newCompileCommand(),
		newServeCommand(),
		newTasksCommand(),
		newConfigCommand(),
		newVersionCommand(),
		newCompletionCommand(),
	)

	return cmd
}
