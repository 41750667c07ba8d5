package config

import "time"

type Config interface {
	// PollInterval is the delay between two live samples.
	PollInterval() time.Duration
	LowBatteryPercent() int
	HighTemperatureCelsius() float64
	// AlertCooldown is the minimum time between two alerts with the same
	// flags.
	AlertCooldown() time.Duration
	PrimaryThreshold() float64
	CriticalThreshold() float64

	CachePath() string
	ReportPath() string
	ChargeLogPath() string
	ProfilesPath() string
	// ReportCommand is nil when the platform default should be used and
	// empty when report generation is disabled.
	ReportCommand() []string
	// RefreshCron is the cron spec of the forced full re-acquisition.
	RefreshCron() string
	AllowNonRootAccess() bool
	// CycleCountOverride is nil unless the user pinned a cycle count.
	CycleCountOverride() *int

	SetPollInterval(time.Duration)
	SetAllowNonRootAccess(bool)
	SetCycleCountOverride(*int)

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
