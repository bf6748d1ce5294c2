package cmd

import (
	"errors"
	"fmt"
	"sort"

	"backitup/internal/config"

	"github.com/spf13/cobra"
)

var explainOrigins bool

// createConfigCommand creates the config subcommand
func createConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and generate configuration",
	}

	sampleCmd := &cobra.Command{
		Use:   "sample",
		Short: "Print a commented sample configuration",
		Long: `Print a sample configuration file with every key and its default.

Examples:
  backitup config sample > config.yaml`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprint(cmd.OutOrStdout(), config.SampleYAML)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check [config-path]",
		Short: "Resolve and validate the configuration",
		Long: `Resolve the configuration exactly as a backup run would and print it
with secrets masked, or list every validation error. Exits with status 2
when the configuration is invalid.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runConfigCheck,
	}
	checkCmd.Flags().BoolVar(&explainOrigins, "explain", false, "show where every value came from")

	configCmd.AddCommand(sampleCmd, checkCmd)
	return configCmd
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	path := configPath(args)

	file, err := config.NewFileSource(path)
	if err != nil {
		return err
	}
	env := config.NewEnvSource(lookupEnv)

	cfg, err := config.Resolve(env, file)
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			fmt.Fprintf(out, "%s is invalid:\n", path)
			for _, v := range verrs {
				fmt.Fprintf(out, "  - %s\n", v.Error())
			}
		}
		return err
	}

	data, err := cfg.RedactedYAML()
	if err != nil {
		return err
	}
	if file.Found() {
		fmt.Fprintf(out, "# resolved from %s and the environment\n", file.Path())
	} else {
		fmt.Fprintf(out, "# %s not found, resolved from the environment and defaults\n", file.Path())
	}
	out.Write(data)

	if explainOrigins {
		origins := config.Explain(env, file)
		names := make([]string, 0, len(origins))
		for name := range origins {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintln(out, "\n# origins")
		for _, name := range names {
			if origins[name] == config.OriginUnset {
				continue
			}
			fmt.Fprintf(out, "# %-32s %s\n", name, origins[name])
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(createConfigCommand())
}
