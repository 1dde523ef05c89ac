package syshealth

import "time"

// Config holds the sampling cadence and the per-component thresholds.
type Config struct {
	CollectionInterval time.Duration
	CollectionTimeout  time.Duration
	// Metrics older than this are reported as stale and never throttle work.
	StalenessThreshold time.Duration

	IOWaitWarningPercent  float64
	IOWaitCriticalPercent float64
	// Load average relative to the CPU count.
	CPULoadWarningFactor  float64
	CPULoadCriticalFactor float64
	MemoryWarningPercent  float64
	MemoryCriticalPercent float64
	DBPoolWarningPercent  float64
	DBPoolCriticalPercent float64
}

func DefaultConfig() *Config {
	return &Config{
		CollectionInterval:    30 * time.Second,
		CollectionTimeout:     5 * time.Second,
		StalenessThreshold:    2 * time.Minute,
		IOWaitWarningPercent:  30.0,
		IOWaitCriticalPercent: 40.0,
		CPULoadWarningFactor:  2.0,
		CPULoadCriticalFactor: 3.0,
		MemoryWarningPercent:  85.0,
		MemoryCriticalPercent: 95.0,
		DBPoolWarningPercent:  75.0,
		DBPoolCriticalPercent: 90.0,
	}
}
