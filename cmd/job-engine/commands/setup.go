// Package commands implements the job-engine subcommands.
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/nuvla/job-engine-sub001/action"
	actionbuiltin "github.com/nuvla/job-engine-sub001/action/builtin"
	"github.com/nuvla/job-engine-sub001/config"
	"github.com/nuvla/job-engine-sub001/distribution"
	distbuiltin "github.com/nuvla/job-engine-sub001/distribution/builtin"
	"github.com/nuvla/job-engine-sub001/errors"
	"github.com/nuvla/job-engine-sub001/logger"
	"github.com/nuvla/job-engine-sub001/resource"
)

// ConfigPath is the --config flag.
var ConfigPath string

// settings is the configuration loaded by Setup.
var settings *config.Config

// skipsConfig lists commands that run without loading configuration.
var skipsConfig = map[string]bool{
	"version": true,
	"help":    true,
}

// Setup loads configuration and initializes the global logger. The -v count
// raises the configured log level.
func Setup(cmd *cobra.Command, verbosity int) error {
	if skipsConfig[cmd.Name()] {
		return nil
	}
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := logger.LevelForVerbosity(cfg.Log.Level, verbosity)
	if err := logger.Initialize(logger.Options{JSON: cfg.Log.JSON, Level: level}); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	settings = cfg
	return nil
}

// applyFlagOverrides lets command flags set on the command line win over
// every config source.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	flags.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "workers":
			if n, err := flags.GetInt(f.Name); err == nil {
				cfg.Executor.Workers = n
			}
		case "name":
			cfg.Name = f.Value.String()
		case "exclude":
			if exclude, err := flags.GetStringSlice(f.Name); err == nil {
				cfg.Distributor.Exclude = exclude
			}
		}
	})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newRegistry() *action.Registry {
	return action.NewRegistry(logger.ComponentLogger("registry"), actionbuiltin.Registrations()...)
}

func newDistributions(client resource.Client) []distribution.Distribution {
	return distbuiltin.Distributions(client)
}
