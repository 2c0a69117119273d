package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/lo"

	"github.com/hupe1980/elmdev/internal/build"
	"github.com/hupe1980/elmdev/internal/compiler"
)

// RunFunc is called each time the watcher triggers a recompile.
type RunFunc func(ctx context.Context) (*build.Result, error)

// Options configures the watch behaviour.
type Options struct {
	// Files are individual files to watch, typically the compiler input.
	Files []string

	// Dirs are directories to watch recursively.
	Dirs []string

	// Extensions restricts events inside Dirs to these file extensions.
	// Empty means every file is relevant.
	Extensions []string

	// Exclude lists paths whose contents never trigger a rebuild, such as
	// the compiler output directory and its lock file.
	Exclude []string

	// Debounce is the quiet period before triggering a rebuild.
	Debounce time.Duration

	// Quiet suppresses everything but failed runs on Out.
	Quiet bool

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Debounce: 300 * time.Millisecond,
		Logger:   slog.Default(),
		Out:      os.Stderr,
	}
}

// matcher decides whether an event path belongs to the watched set.
type matcher struct {
	files   map[string]bool
	dirs    []string
	exts    map[string]bool
	exclude []string
}

func newMatcher(files, dirs, exts, exclude []string) (*matcher, error) {
	m := &matcher{
		files: make(map[string]bool, len(files)),
		exts:  make(map[string]bool, len(exts)),
	}

	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("resolving file %q: %w", f, err)
		}

		m.files[abs] = true
	}

	for _, d := range dirs {
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, fmt.Errorf("resolving directory %q: %w", d, err)
		}

		m.dirs = append(m.dirs, abs)
	}

	for _, x := range exclude {
		abs, err := filepath.Abs(x)
		if err != nil {
			return nil, fmt.Errorf("resolving excluded path %q: %w", x, err)
		}

		m.exclude = append(m.exclude, abs)
	}

	for _, e := range exts {
		if e != "" && !strings.HasPrefix(e, ".") {
			e = "." + e
		}

		m.exts[strings.ToLower(e)] = true
	}

	return m, nil
}

func (m *matcher) match(name string) bool {
	if m.excluded(name) {
		return false
	}

	if m.files[name] {
		return true
	}

	for _, d := range m.dirs {
		if !within(name, d) {
			continue
		}

		if len(m.exts) == 0 || m.exts[strings.ToLower(filepath.Ext(name))] {
			return true
		}
	}

	return false
}

func (m *matcher) excluded(name string) bool {
	return lo.SomeBy(m.exclude, func(x string) bool { return within(name, x) })
}

// watchesDir reports whether dir lies inside a recursively watched
// directory and must be added to the watcher.
func (m *matcher) watchesDir(dir string) bool {
	if m.excluded(dir) || skipDirName(filepath.Base(dir)) {
		return false
	}

	return lo.SomeBy(m.dirs, func(d string) bool { return within(dir, d) })
}

// within reports whether name is root or lies below it.
func within(name, root string) bool {
	return name == root || strings.HasPrefix(name, root+string(filepath.Separator))
}

// fileDirs returns the distinct parent directories of the watched files.
// Watching the directory keeps the watch alive when an editor replaces
// the file by renaming a temporary copy over it.
func (m *matcher) fileDirs() []string {
	return lo.Uniq(lo.Map(lo.Keys(m.files), func(f string, _ int) string {
		return filepath.Dir(f)
	}))
}

// Run starts the file watcher and blocks until ctx is cancelled.
// It does not compile on start; callers run the initial compile.
func Run(ctx context.Context, opts Options, runFn RunFunc) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	if len(opts.Files) == 0 && len(opts.Dirs) == 0 {
		return errors.New("nothing to watch")
	}

	m, err := newMatcher(opts.Files, opts.Dirs, opts.Extensions, opts.Exclude)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	for _, dir := range m.fileDirs() {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching directory %q: %w", dir, err)
		}
	}

	for _, dir := range m.dirs {
		if err := addRecursive(watcher, dir, m.excluded); err != nil {
			return fmt.Errorf("watching source directory: %w", err)
		}
	}

	fmt.Fprintf(opts.info(), "watching %s (debounce=%s)\n",
		strings.Join(append(append([]string{}, opts.Files...), opts.Dirs...), ", "), opts.Debounce)

	debouncer := NewDebouncer(opts.Debounce, func(paths []string) {
		doRun(ctx, opts, runFn, describeTrigger(paths))
	})
	defer debouncer.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(opts.info(), "shutting down watcher")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !isRelevant(event) {
				continue
			}

			// If a new directory was created inside a source dir, watch it too.
			if event.Has(fsnotify.Create) {
				if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
					if m.watchesDir(event.Name) {
						_ = addRecursive(watcher, event.Name, m.excluded)
					}

					continue
				}
			}

			if !m.match(event.Name) {
				continue
			}

			opts.Logger.Debug("change detected",
				slog.String("path", event.Name),
				slog.String("op", event.Op.String()),
			)

			debouncer.Trigger(event.Name)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			opts.Logger.Error("watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func describeTrigger(paths []string) string {
	names := lo.Map(paths, func(p string, _ int) string { return filepath.Base(p) })

	if len(names) > 3 {
		return fmt.Sprintf("%s and %d more", strings.Join(names[:3], ", "), len(names)-3)
	}

	return strings.Join(names, ", ")
}

// doRun executes a single compile and prints the status line. Errors are
// reported and swallowed so the watch loop keeps going.
func doRun(ctx context.Context, opts Options, runFn RunFunc, trigger string) {
	if ctx.Err() != nil {
		return
	}

	now := time.Now().Format("15:04:05")

	result, err := runFn(ctx)
	if err != nil {
		fmt.Fprintf(opts.Out, "[%s] %s → ERROR: %v\n", now, trigger, err)

		var compileErr *compiler.CompileError
		if errors.As(err, &compileErr) && compileErr.Output != "" {
			fmt.Fprintln(opts.Out, indent(compileErr.Output, "  "))
		}

		return
	}

	fmt.Fprintf(opts.info(), "[%s] %s → OK (%d artifacts, %s)\n",
		now, trigger, len(result.Artifacts), result.Duration.Round(time.Millisecond))

	if len(result.Changes) > 0 {
		fmt.Fprintf(opts.info(), "  output: %s\n", build.DiffSummary(result.Changes))
	}
}

// info returns the writer for non-error status lines.
func (o Options) info() io.Writer {
	if o.Quiet {
		return io.Discard
	}

	return o.Out
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}

	return strings.Join(lines, "\n")
}

// addRecursive walks root and adds all directories to the watcher,
// skipping hidden directories, compiler caches and excluded paths below
// root.
func addRecursive(watcher *fsnotify.Watcher, root string, excluded func(string) bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() {
			return nil
		}

		if path != root && skipDirName(d.Name()) {
			return filepath.SkipDir
		}

		if excluded != nil {
			if abs, absErr := filepath.Abs(path); absErr == nil && excluded(abs) {
				return filepath.SkipDir
			}
		}

		return watcher.Add(path)
	})
}

func skipDirName(name string) bool {
	return strings.HasPrefix(name, ".") || name == "elm-stuff" || name == "node_modules"
}

// isRelevant filters out event kinds and editor artefacts.
func isRelevant(event fsnotify.Event) bool {
	if event.Op == 0 {
		return false
	}

	// Only care about write, create, remove, rename.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)

	// Ignore editor temporary files and hidden files.
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") || strings.HasPrefix(name, "#") {
		return false
	}

	return true
}
