package cli

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newTasksCommand() *cobra.Command {
	var plan string

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the available tasks",
		Long: `Tasks prints every task with its dependencies. With --plan it prints
the order in which the given task and its dependencies would run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := newProject(cmd, false)
			defer p.close()

			reg := p.registry()

			if plan != "" {
				order, err := reg.Plan(plan)
				if err != nil {
					return &ExitError{Code: 2, Err: err}
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(order, " → "))

				return err
			}

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"Task", "Depends on", "Description"})

			for _, t := range reg.List() {
				tw.AppendRow(table.Row{t.Name, strings.Join(t.Deps, ", "), t.Description})
			}

			tw.SetColumnConfigs([]table.ColumnConfig{
				{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
				{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
				{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
			})

			_, err := fmt.Fprintln(cmd.OutOrStdout(), tw.Render())

			return err
		},
	}

	cmd.Flags().StringVar(&plan, "plan", "", "print the execution order for a task")

	return cmd
}
