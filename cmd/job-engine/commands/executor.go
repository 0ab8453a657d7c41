package commands

import (
	"github.com/spf13/cobra"

	"github.com/nuvla/job-engine-sub001/engine"
	"github.com/nuvla/job-engine-sub001/logger"
	"github.com/nuvla/job-engine-sub001/version"
)

// ExecutorCmd runs the worker pool.
var ExecutorCmd = &cobra.Command{
	Use:   "executor",
	Short: "Run jobs from the queue",
	Long: `Start an executor process.

Each worker acquires a job from the etcd queue, checks the job's version
against this engine, runs the job's action and records the outcome. On
SIGINT/SIGTERM workers finish the job in hand, then exit.`,
	RunE: runExecutor,
}

func init() {
	ExecutorCmd.Flags().IntP("workers", "w", 0, "Number of concurrent workers (overrides executor.workers)")
	ExecutorCmd.Flags().String("name", "", "Process name (overrides name)")
}

func runExecutor(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	log := logger.ComponentLogger("executor").With(logger.FieldEngineName, settings.Name)
	log.Infow("Starting executor", logger.FieldVersion, version.Engine())

	rt, err := engine.New(ctx, settings, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	return rt.Executor(newRegistry()).Run(ctx)
}
