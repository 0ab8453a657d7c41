package config

import (
	"github.com/pelletier/go-toml/v2"

	"github.com/nuvla/job-engine-sub001/errors"
)

const redacted = "********"

// Encode renders the effective configuration as TOML with credentials redacted.
func Encode(cfg *Config) ([]byte, error) {
	out := *cfg
	if out.API.Secret != "" {
		out.API.Secret = redacted
	}
	data, err := toml.Marshal(out)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode config")
	}
	return data, nil
}
