// Package build runs the compile step: one compiler invocation per call,
// serialised through a single worker and guarded by an output lock, with
// the resulting artifacts compared against the previous run.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/gofrs/flock"

	"github.com/hupe1980/elmdev/internal/compiler"
)

// ErrLocked is returned when another process holds the output lock.
var ErrLocked = errors.New("output directory is locked by another process")

// ErrClosed is returned by Compile after Close.
var ErrClosed = errors.New("builder is closed")

// Result holds the output of a single compile.
type Result struct {
	// Output is the artifact written by the compiler.
	Output string

	// CompilerOutput is everything the compiler printed.
	CompilerOutput string

	Duration  time.Duration
	Artifacts []Artifact

	// Changes compares Artifacts against the previous successful compile.
	// It is nil for the first compile.
	Changes []ArtifactChange
}

// Options configures a Builder.
type Options struct {
	// Source is the compiler input file.
	Source string

	// OutDir is the directory the artifact is written to.
	OutDir string

	// OutputName overrides the artifact file name. Defaults to the source
	// stem with a .js extension.
	OutputName string

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// Builder serialises compiles of a single source file.
type Builder struct {
	compiler *compiler.Compiler
	opts     Options
	pool     *workerpool.WorkerPool
	lock     *flock.Flock

	// closeMu orders Compile against Close so no task is submitted to a
	// stopped pool.
	closeMu sync.RWMutex

	mu       sync.Mutex
	prev     []Artifact
	havePrev bool
	runs     int
}

// NewBuilder creates a Builder that compiles opts.Source with c.
func NewBuilder(c *compiler.Compiler, opts Options) *Builder {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Builder{
		compiler: c,
		opts:     opts,
		pool:     workerpool.New(1),
		lock:     flock.New(LockPath(opts.OutDir)),
	}
}

// OutputPath returns the artifact path for source inside outDir.
func OutputPath(source, outDir, outputName string) string {
	if outputName == "" {
		base := filepath.Base(source)
		outputName = strings.TrimSuffix(base, filepath.Ext(base)) + ".js"
	}

	return filepath.Join(outDir, outputName)
}

// LockPath returns the lock file guarding outDir. It lives next to the
// directory so it is never served. Relative directories are resolved
// first so "." does not put the lock inside itself.
func LockPath(outDir string) string {
	clean, err := filepath.Abs(outDir)
	if err != nil {
		clean = filepath.Clean(outDir)
	}

	return filepath.Join(filepath.Dir(clean), "."+filepath.Base(clean)+".lock")
}

// Output returns the artifact path this builder writes.
func (b *Builder) Output() string {
	return OutputPath(b.opts.Source, b.opts.OutDir, b.opts.OutputName)
}

// Runs reports how many compiles have been executed.
func (b *Builder) Runs() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.runs
}

// Compile runs the compiler once. Concurrent callers queue behind each
// other; each call performs its own compile.
func (b *Builder) Compile(ctx context.Context) (*Result, error) {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()

	if b.pool.Stopped() {
		return nil, ErrClosed
	}

	var (
		res *Result
		err error
	)

	b.pool.SubmitWait(func() {
		res, err = b.compile(ctx)
	})

	return res, err
}

// Close waits for running and queued compiles and releases the worker.
func (b *Builder) Close() {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()

	b.pool.StopWait()
}

func (b *Builder) compile(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(b.lock.Path()), 0o750); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	locked, err := b.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring output lock: %w", err)
	}

	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, b.lock.Path())
	}

	defer func() {
		if unlockErr := b.lock.Unlock(); unlockErr != nil {
			b.opts.Logger.Warn("failed to release output lock", slog.String("error", unlockErr.Error()))
		}
	}()

	b.mu.Lock()
	b.runs++
	b.mu.Unlock()

	out := b.Output()
	start := time.Now()

	b.opts.Logger.Debug("compiling",
		slog.String("source", b.opts.Source),
		slog.String("output", out),
	)

	printed, err := b.compiler.Compile(ctx, b.opts.Source, out)
	elapsed := time.Since(start)

	if err != nil {
		b.opts.Logger.Debug("compile failed", slog.Duration("duration", elapsed), slog.String("error", err.Error()))
		return nil, err
	}

	artifacts, err := ScanArtifacts(b.opts.OutDir)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	var changes []ArtifactChange
	if b.havePrev {
		changes = DiffArtifacts(b.prev, artifacts)
	}

	b.prev = artifacts
	b.havePrev = true
	b.mu.Unlock()

	b.opts.Logger.Debug("compiled",
		slog.String("output", out),
		slog.Duration("duration", elapsed),
		slog.Int("artifacts", len(artifacts)),
	)

	return &Result{
		Output:         out,
		CompilerOutput: strings.TrimSpace(string(printed)),
		Duration:       elapsed,
		Artifacts:      artifacts,
		Changes:        changes,
	}, nil
}
