package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hupe1980/elmdev/internal/config"
	"github.com/hupe1980/elmdev/internal/logging"
	"github.com/hupe1980/elmdev/internal/output"
)

func newConfigCommand() *cobra.Command {
	var (
		format string
		file   string
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Config prints the configuration after merging defaults, the config
file, ELMDEV_ environment variables and flags. The YAML output is a
valid .elmdev.yaml.`,
		Example: `  elmdev config
  elmdev config --format toml
  elmdev config -o .elmdev.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)

			data, err := output.Encode(format, cfg)
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}

			w := output.NewWriter(file, cmd.OutOrStdout(), output.WithLogger(logging.FromContext(ctx)))
			if err := w.Write(data); err != nil {
				return err
			}

			if file != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", file)
			}

			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&format, "format", output.FormatYAML, "output format: "+strings.Join(output.Formats(), ", "))
	f.StringVarP(&file, "output", "o", "", "write to file instead of stdout")

	return cmd
}
