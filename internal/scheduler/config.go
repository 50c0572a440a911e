package scheduler

import "time"

// Config controls the daily task. DailyTime is "HH:MM" in UTC.
type Config struct {
	DailyTime     string
	CheckInterval time.Duration
	JobTimeout    time.Duration
	LockTTL       time.Duration
	BatchSize     int
}

func DefaultConfig() Config {
	return Config{
		DailyTime:     "09:00",
		CheckInterval: time.Minute,
		JobTimeout:    5 * time.Minute,
		LockTTL:       15 * time.Minute,
		BatchSize:     200,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.DailyTime == "" {
		c.DailyTime = defaults.DailyTime
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = defaults.CheckInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}
