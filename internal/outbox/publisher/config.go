package publisher

import "time"

type Config struct {
	BatchSize    int
	PollInterval time.Duration
	RunTimeout   time.Duration
	// MaxAttempts is an optional delivery ceiling. Zero keeps the legacy
	// behavior: rows are retried forever and there is no dead-letter path.
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = 30 * time.Second
	}
	return c
}
