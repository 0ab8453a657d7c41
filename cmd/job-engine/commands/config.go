package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nuvla/job-engine-sub001/config"
)

// ConfigCmd groups configuration commands.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Inspect job-engine configuration.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (JOB_ENGINE_* prefix, e.g. JOB_ENGINE_EXECUTOR_WORKERS)
3. --config file
4. User config (~/.job-engine/config.toml)
5. System config (/etc/job-engine/config.toml)
6. Default values`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration as TOML",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := config.Encode(settings)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var configWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show which configuration files are read",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range config.Sources(ConfigPath) {
			state := "missing"
			if path.Exists {
				state = "found"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", state, path.Path)
		}
		return nil
	},
}

func init() {
	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configWhereCmd)
}
