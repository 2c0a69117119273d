package cli

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

// blockingTasks run until interrupted.
var blockingTasks = []string{taskServe, taskWatch, taskDefault}

// checkBlocking rejects task lists where a blocking task would keep the
// tasks after it from ever starting.
func checkBlocking(names []string) error {
	for i, name := range names {
		if lo.Contains(blockingTasks, name) && i != len(names)-1 {
			return fmt.Errorf("task %s runs until interrupted and must be the last task; use %s to serve and watch together",
				name, taskDefault)
		}
	}

	return nil
}

func newRunCommand() *cobra.Command {
	var keepGoing bool

	cmd := &cobra.Command{
		Use:   "run <task>...",
		Short: "Run one or more tasks",
		Long: `Run executes the named tasks in order. Each task runs after its
dependencies, and a task shared by several of them runs only once.

The serve, watch and default tasks run until interrupted, so only one of
them may be given and it must come last. The default task serves and
watches together.

Use "elmdev tasks" to list the available tasks.`,
		Example: `  elmdev run compile
  elmdev run compile serve`,
		Args: cobra.MinimumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return []string{taskInit, taskCompile, taskServe, taskWatch, taskDefault}, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkBlocking(args); err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			return runTasks(cmd, keepGoing, args...)
		},
	}

	cmd.Flags().BoolVarP(&keepGoing, "keep-going", "k", false, "report a failed initial compile and continue")

	return cmd
}

func newCompileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compile",
		Short: "Compile the source once",
		Long: `Compile checks the compiler and runs it once, writing the artifact
into the output directory. A compile error exits with status 1 and the
compiler's diagnostics on stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTasks(cmd, false, taskCompile)
		},
	}
}

func newServeCommand() *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Compile and serve the output directory",
		Long: `Serve compiles the source, then serves the output directory over
HTTP and recompiles on every change. With --no-watch only the HTTP
server runs. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if noWatch {
				return runTasks(cmd, true, taskServe)
			}

			return runTasks(cmd, true, taskDefault)
		},
	}

	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "serve without watching for changes")

	return cmd
}
