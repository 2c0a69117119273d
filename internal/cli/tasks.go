package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/elmdev/internal/build"
	"github.com/hupe1980/elmdev/internal/compiler"
	"github.com/hupe1980/elmdev/internal/config"
	"github.com/hupe1980/elmdev/internal/logging"
	"github.com/hupe1980/elmdev/internal/server"
	"github.com/hupe1980/elmdev/internal/task"
	"github.com/hupe1980/elmdev/internal/watch"
)

// Built-in task names.
const (
	taskInit    = "init"
	taskCompile = "compile"
	taskServe   = "serve"
	taskWatch   = "watch"
	taskDefault = "default"
)

// project binds the built-in tasks to one loaded configuration.
type project struct {
	cfg    *config.Config
	logger *slog.Logger

	// status receives compile and watch status lines.
	status io.Writer

	// requests receives text request log lines.
	requests io.Writer

	compiler *compiler.Compiler
	builder  *build.Builder

	// keepGoing turns a failed compile into a report instead of an error,
	// so serve and watch still start.
	keepGoing bool
}

func newProject(cmd *cobra.Command, keepGoing bool) *project {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	c := compiler.New(cfg.Compiler, cfg.CompilerArgs)
	c.Constraint = cfg.CompilerVersion

	return &project{
		cfg:      cfg,
		logger:   logger,
		status:   cmd.ErrOrStderr(),
		requests: cmd.OutOrStdout(),
		compiler: c,
		builder: build.NewBuilder(c, build.Options{
			Source:     cfg.Source,
			OutDir:     cfg.OutDir,
			OutputName: cfg.OutputName,
			Logger:     logging.Component(logger, "build"),
		}),
		keepGoing: keepGoing,
	}
}

func (p *project) close() {
	p.builder.Close()
}

func (p *project) registry() *task.Registry {
	r := task.NewRegistry()

	r.MustRegister(
		&task.Task{
			Name:        taskInit,
			Description: "check that the compiler is installed",
			Run:         p.checkCompiler,
		},
		&task.Task{
			Name:        taskCompile,
			Description: "compile the source into the output directory",
			Deps:        []string{taskInit},
			Run:         p.compile,
		},
		&task.Task{
			Name:        taskServe,
			Description: "serve the output directory over HTTP",
			Deps:        []string{taskCompile},
			Run:         p.serve,
		},
		&task.Task{
			Name:        taskWatch,
			Description: "recompile when the source changes",
			Deps:        []string{taskCompile},
			Run:         p.watch,
		},
		&task.Task{
			Name:        taskDefault,
			Description: "compile, then serve and watch until interrupted",
			Deps:        []string{taskCompile},
			Run:         p.serveAndWatch,
		},
	)

	return r
}

func (p *project) checkCompiler(ctx context.Context) error {
	path, err := p.compiler.LookPath()
	if err != nil {
		return err
	}

	v, err := p.compiler.CheckVersion(ctx)
	if err != nil {
		return err
	}

	attrs := []any{slog.String("path", path)}
	if v != nil {
		attrs = append(attrs, slog.String("version", v.String()))
	}

	p.logger.Debug("compiler found", attrs...)

	return nil
}

func (p *project) compile(ctx context.Context) error {
	start := time.Now()

	res, err := p.builder.Compile(ctx)
	if err != nil {
		var compileErr *compiler.CompileError
		if !errors.As(err, &compileErr) {
			return err
		}

		fmt.Fprintf(p.status, "compile failed after %s\n", time.Since(start).Round(time.Millisecond))

		if out := strings.TrimSpace(compileErr.Output); out != "" {
			fmt.Fprintln(p.status, out)
		}

		if p.keepGoing {
			p.logger.Warn("initial compile failed, waiting for changes", slog.String("error", err.Error()))
			return nil
		}

		return err
	}

	if p.cfg.Quiet {
		return nil
	}

	total := lo.SumBy(res.Artifacts, func(a build.Artifact) int64 { return a.Size })

	fmt.Fprintf(p.status, "compiled %s → %s (%d artifacts, %s, %s)\n",
		p.cfg.Source, res.Output, len(res.Artifacts),
		humanize.IBytes(uint64(total)), res.Duration.Round(time.Millisecond))

	return nil
}

func (p *project) serve(ctx context.Context) error {
	if err := os.MkdirAll(p.cfg.OutDir, 0o750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	srv := server.New(server.Options{
		Addr:       p.cfg.Addr,
		Dir:        p.cfg.OutDir,
		RequestLog: p.cfg.RequestLog,
		Out:        p.requests,
		NoColor:    p.cfg.NoColor,
		Logger:     logging.Component(p.logger, "server"),
	})

	return srv.ListenAndServe(ctx)
}

func (p *project) watch(ctx context.Context) error {
	opts := watch.DefaultOptions()
	opts.Files = []string{p.cfg.Source}
	opts.Dirs = p.cfg.WatchDirs
	opts.Extensions = p.cfg.WatchExt
	opts.Exclude = []string{p.cfg.OutDir, build.LockPath(p.cfg.OutDir)}
	opts.Debounce = p.cfg.Debounce
	opts.Quiet = p.cfg.Quiet
	opts.Logger = logging.Component(p.logger, "watch")
	opts.Out = p.status

	return watch.Run(ctx, opts, p.builder.Compile)
}

func (p *project) serveAndWatch(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return p.serve(ctx) })
	g.Go(func() error { return p.watch(ctx) })

	return g.Wait()
}

// runTasks runs names against the command's configuration. Unknown tasks
// are usage errors. Cancellation by signal is a clean exit.
func runTasks(cmd *cobra.Command, keepGoing bool, names ...string) error {
	p := newProject(cmd, keepGoing)
	defer p.close()

	err := p.registry().RunAll(cmd.Context(), names...)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, task.ErrNotFound):
		return &ExitError{Code: 2, Err: err}
	case errors.Is(err, context.Canceled) && cmd.Context().Err() != nil:
		return nil
	}

	return err
}
