package commands

import (
	"github.com/spf13/cobra"

	"github.com/nuvla/job-engine-sub001/config"
	"github.com/nuvla/job-engine-sub001/engine"
	"github.com/nuvla/job-engine-sub001/logger"
)

// DistributorCmd generates jobs while leading.
var DistributorCmd = &cobra.Command{
	Use:   "distributor",
	Short: "Generate jobs for every enabled distribution",
	Long: `Start a distributor process.

For every distribution not excluded, the process contends for that
job-type's leadership in etcd. While leading it creates jobs at the
distribution's collect interval. Interval overrides under
distributor.intervals are reloaded when the --config file changes.`,
	RunE: runDistributor,
}

func init() {
	DistributorCmd.Flags().String("name", "", "Process name (overrides name)")
	DistributorCmd.Flags().StringSlice("exclude", nil, "Job-types not to distribute (overrides distributor.exclude)")
}

func runDistributor(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	log := logger.ComponentLogger("distributor").With(logger.FieldEngineName, settings.Name)
	rt, err := engine.New(ctx, settings, log)
	if err != nil {
		return err
	}
	defer rt.Close()

	if ConfigPath != "" {
		watcher, err := config.NewWatcher(ConfigPath, log.Named("config"))
		if err != nil {
			log.Warnw("Config reload disabled", logger.FieldError, err)
		} else {
			watcher.OnReload(rt.Reload)
			watcher.Start()
			defer watcher.Stop()
		}
	}

	log.Infow("Starting distributor", "identity", rt.Identity)
	return rt.Distributor(newDistributions(rt.Client)).Run(ctx)
}
