// Package config loads job engine process configuration.
//
// Sources are merged in precedence order (lowest to highest):
// system file < user file < explicit --config file < JOB_ENGINE_* environment < flags.
package config

// Config is the process configuration shared by distributor and executor processes.
type Config struct {
	Name        string            `mapstructure:"name" toml:"name"` // used in election identity and logs
	Coord       CoordConfig       `mapstructure:"coord" toml:"coord"`
	API         APIConfig         `mapstructure:"api" toml:"api"`
	Executor    ExecutorConfig    `mapstructure:"executor" toml:"executor"`
	Distributor DistributorConfig `mapstructure:"distributor" toml:"distributor"`
	Log         LogConfig         `mapstructure:"log" toml:"log"`
}

// CoordConfig configures the coordination service (etcd).
type CoordConfig struct {
	Hosts              []string `mapstructure:"hosts" toml:"hosts"`                               // e.g. ["127.0.0.1:2379"]
	Prefix             string   `mapstructure:"prefix" toml:"prefix"`                             // key namespace (default: /job-engine)
	SessionTTLSeconds  int      `mapstructure:"session_ttl_seconds" toml:"session_ttl_seconds"`   // lease TTL for held entries and leadership
	DialTimeoutSeconds int      `mapstructure:"dial_timeout_seconds" toml:"dial_timeout_seconds"` // startup dial timeout
}

// APIConfig configures the Resource API client.
type APIConfig struct {
	Endpoint          string  `mapstructure:"endpoint" toml:"endpoint"`
	Key               string  `mapstructure:"key" toml:"key"`
	Secret            string  `mapstructure:"secret" toml:"secret"`
	Insecure          bool    `mapstructure:"insecure" toml:"insecure"`                       // skip TLS verification
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" toml:"timeout_seconds"`         // per request
	RequestsPerSecond float64 `mapstructure:"requests_per_second" toml:"requests_per_second"` // 0 = unlimited
}

// ExecutorConfig configures the worker pool.
type ExecutorConfig struct {
	Workers       int `mapstructure:"workers" toml:"workers"`               // concurrent workers (default: 1)
	FetchAttempts int `mapstructure:"fetch_attempts" toml:"fetch_attempts"` // job fetch attempts tolerating 404 (default: 10)
	FetchDelayMS  int `mapstructure:"fetch_delay_ms" toml:"fetch_delay_ms"` // delay between fetch attempts (default: 1000)
}

// DistributorConfig configures which distributions run and how often.
type DistributorConfig struct {
	Exclude   []string       `mapstructure:"exclude" toml:"exclude"`     // job-types not to distribute
	Intervals map[string]int `mapstructure:"intervals" toml:"intervals"` // job-type = seconds, overrides collect interval
}

// LogConfig configures logging output.
type LogConfig struct {
	JSON  bool   `mapstructure:"json" toml:"json"`
	Level string `mapstructure:"level" toml:"level"`
}

// Excluded reports whether a job-type is listed in distributor.exclude.
func (c *Config) Excluded(jobType string) bool {
	for _, name := range c.Distributor.Exclude {
		if name == jobType {
			return true
		}
	}
	return false
}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)
