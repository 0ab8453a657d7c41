package config

import "github.com/nuvla/job-engine-sub001/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("name cannot be empty")
	}

	if len(c.Coord.Hosts) == 0 {
		return errors.New("coord.hosts cannot be empty")
	}
	for _, host := range c.Coord.Hosts {
		if host == "" {
			return errors.New("coord.hosts cannot contain empty entries")
		}
	}
	if c.Coord.SessionTTLSeconds <= 0 {
		return errors.Newf("coord.session_ttl_seconds must be > 0, got %d", c.Coord.SessionTTLSeconds)
	}
	if c.Coord.DialTimeoutSeconds <= 0 {
		return errors.Newf("coord.dial_timeout_seconds must be > 0, got %d", c.Coord.DialTimeoutSeconds)
	}

	if c.API.Endpoint == "" {
		return errors.New("api.endpoint cannot be empty")
	}
	if c.API.TimeoutSeconds <= 0 {
		return errors.Newf("api.timeout_seconds must be > 0, got %d", c.API.TimeoutSeconds)
	}
	// 0 = unlimited, negative = invalid
	if c.API.RequestsPerSecond < 0 {
		return errors.Newf("api.requests_per_second must be >= 0, got %f", c.API.RequestsPerSecond)
	}

	if c.Executor.Workers < 1 {
		return errors.Newf("executor.workers must be >= 1, got %d", c.Executor.Workers)
	}
	if c.Executor.FetchAttempts < 1 {
		return errors.Newf("executor.fetch_attempts must be >= 1, got %d", c.Executor.FetchAttempts)
	}
	if c.Executor.FetchDelayMS < 0 {
		return errors.Newf("executor.fetch_delay_ms must be >= 0, got %d", c.Executor.FetchDelayMS)
	}

	for jobType, seconds := range c.Distributor.Intervals {
		if seconds <= 0 {
			return errors.Newf("distributor.intervals.%s must be > 0, got %d", jobType, seconds)
		}
	}

	return nil
}
