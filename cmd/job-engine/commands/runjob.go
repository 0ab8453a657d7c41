package commands

import (
	"github.com/spf13/cobra"

	"github.com/nuvla/job-engine-sub001/engine"
	"github.com/nuvla/job-engine-sub001/logger"
)

// RunJobCmd runs one job by id.
var RunJobCmd = &cobra.Command{
	Use:   "run-job <job-id>",
	Short: "Run a single job by id, outside the queue",
	Long: `Fetch a job and run its action in this process, without taking
it from the queue. Used for jobs with execution-mode "pull".`,
	Args: cobra.ExactArgs(1),
	RunE: runJob,
}

func runJob(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	log := logger.ComponentLogger("run-job").With(logger.FieldEngineName, settings.Name)
	client, err := engine.NewClient(ctx, settings, log)
	if err != nil {
		return err
	}
	rt := engine.Standalone(settings, client, log)
	return rt.Executor(newRegistry()).RunOne(ctx, args[0])
}
