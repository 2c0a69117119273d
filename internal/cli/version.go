package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/elmdev/internal/compiler"
	"github.com/hupe1980/elmdev/internal/config"
	"github.com/hupe1980/elmdev/internal/version"
)

func newVersionCommand() *cobra.Command {
	var (
		jsonOutput   bool
		withCompiler bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long: `Display the version, git commit, build date, Go version, and platform.
With --with-compiler the configured compiler is asked for its version too.`,
		Args: cobra.NoArgs,
		// Override parent PersistentPreRunE: version needs no config.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetInfo()

			if withCompiler {
				cfg, err := config.Load(cmd, cmd.Flag("config").Value.String())
				if err != nil {
					return &ExitError{Code: 2, Err: err}
				}

				v, err := compiler.New(cfg.Compiler, cfg.CompilerArgs).Version(cmd.Context())
				if err != nil {
					return err
				}

				info = info.WithCompiler(v.String())
			}

			if jsonOutput {
				j, err := info.JSON()
				if err != nil {
					return err
				}

				_, err = fmt.Fprintln(cmd.OutOrStdout(), j)

				return err
			}

			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())

			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output version info as JSON")
	cmd.Flags().BoolVar(&withCompiler, "with-compiler", false, "include the compiler version")

	return cmd
}
