package config

import (
	"github.com/spf13/viper"
)

// Defaults for values the engine cannot run without.
const (
	DefaultName              = "job-engine"
	DefaultPrefix            = "/job-engine"
	DefaultSessionTTLSeconds = 10
	DefaultDialTimeout       = 5
	DefaultAPITimeout        = 30
	DefaultWorkers           = 1
	DefaultFetchAttempts     = 10
	DefaultFetchDelayMS      = 1000
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("name", DefaultName)

	// Coordination service
	v.SetDefault("coord.hosts", []string{"127.0.0.1:2379"})
	v.SetDefault("coord.prefix", DefaultPrefix)
	v.SetDefault("coord.session_ttl_seconds", DefaultSessionTTLSeconds)
	v.SetDefault("coord.dial_timeout_seconds", DefaultDialTimeout)

	// Resource API
	v.SetDefault("api.endpoint", "https://localhost")
	v.SetDefault("api.key", "")
	v.SetDefault("api.secret", "")
	v.SetDefault("api.insecure", false)
	v.SetDefault("api.timeout_seconds", DefaultAPITimeout)
	v.SetDefault("api.requests_per_second", 0)

	// Executor
	v.SetDefault("executor.workers", DefaultWorkers)
	v.SetDefault("executor.fetch_attempts", DefaultFetchAttempts)
	v.SetDefault("executor.fetch_delay_ms", DefaultFetchDelayMS)

	// Distributor
	v.SetDefault("distributor.exclude", []string{})
	v.SetDefault("distributor.intervals", map[string]int{})

	// Logging
	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")
}

// BindSensitiveEnvVars explicitly binds credentials to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("api.key", "JOB_ENGINE_API_KEY")
	_ = v.BindEnv("api.secret", "JOB_ENGINE_API_SECRET")
}
