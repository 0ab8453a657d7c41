package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/nuvla/job-engine-sub001/errors"
)

// EnvPrefix is the prefix for environment overrides, e.g. JOB_ENGINE_EXECUTOR_WORKERS.
const EnvPrefix = "JOB_ENGINE"

// SystemConfigPath is the lowest precedence config file.
const SystemConfigPath = "/etc/job-engine/config.toml"

// UserConfigPath returns ~/.job-engine/config.toml, or "" when the home directory is unknown.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".job-engine", "config.toml")
}

// Source is a config file considered by NewViper.
type Source struct {
	Path   string
	Exists bool
}

// Sources lists the config files in precedence order, lowest first.
func Sources(explicitPath string) []Source {
	paths := []string{SystemConfigPath}
	if user := UserConfigPath(); user != "" {
		paths = append(paths, user)
	}
	if explicitPath != "" {
		paths = append(paths, explicitPath)
	}
	out := make([]Source, 0, len(paths))
	for _, path := range paths {
		_, err := os.Stat(path)
		out = append(out, Source{Path: path, Exists: err == nil})
	}
	return out
}

// NewViper builds a viper instance with defaults, env binding and the config
// files merged in precedence order. explicitPath is the --config flag value and
// may be empty. A missing explicit file is an error; missing system or user
// files are skipped.
func NewViper(explicitPath string) (*viper.Viper, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)

	SetDefaults(v)

	paths := []string{SystemConfigPath}
	if user := UserConfigPath(); user != "" {
		paths = append(paths, user)
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := mergeFile(v, path); err != nil {
			return nil, err
		}
	}

	if explicitPath != "" {
		if err := mergeFile(v, explicitPath); err != nil {
			return nil, err
		}
	}

	return v, nil
}

// mergeFile reads a single toml file and merges it over v.
func mergeFile(v *viper.Viper, path string) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	tmp.SetConfigType("toml")
	if err := tmp.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	if err := v.MergeConfigMap(tmp.AllSettings()); err != nil {
		return errors.Wrapf(err, "failed to merge config file %s", path)
	}
	return nil
}

// Unmarshal decodes and validates the effective configuration held by v.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if cfg.Distributor.Intervals == nil {
		cfg.Distributor.Intervals = map[string]int{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// Load is NewViper followed by Unmarshal.
func Load(explicitPath string) (*Config, error) {
	v, err := NewViper(explicitPath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(v)
}
