package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nuvla/job-engine-sub001/cmd/job-engine/commands"
	"github.com/nuvla/job-engine-sub001/logger"
)

var rootCmd = &cobra.Command{
	Use:   "job-engine",
	Short: "Distributed job engine - distributors generate jobs, executors run them",
	Long: `job-engine runs the two halves of the job engine.

Distributors contend for one leadership token per job-type and, while
leading, periodically create jobs through the Resource API. Executors pull
jobs from the shared etcd queue and run the matching action.

Available commands:
  executor     - Run jobs from the queue
  distributor  - Generate jobs for every enabled distribution
  run-job      - Run a single job by id, outside the queue
  queue        - Operate on the job queue
  actions      - List registered actions and distributions
  config       - Show the effective configuration
  version      - Show version information

Examples:
  job-engine executor --workers 4
  job-engine distributor -v
  job-engine run-job job/0f1e2d3c
  job-engine config show`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		return commands.Setup(cmd, verbosity)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&commands.ConfigPath, "config", "c", "", "Config file (merged over system and user config)")
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")

	rootCmd.AddCommand(commands.ExecutorCmd)
	rootCmd.AddCommand(commands.DistributorCmd)
	rootCmd.AddCommand(commands.RunJobCmd)
	rootCmd.AddCommand(commands.QueueCmd)
	rootCmd.AddCommand(commands.ActionsCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
