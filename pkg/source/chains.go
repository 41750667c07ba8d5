package source

// Chains lists the sources for each field group in priority order. The
// order is fixed at construction and never changes at runtime.
type Chains struct {
	Presence    []PresenceDetector
	Identity    []IdentitySource
	Static      []StaticSource
	Cycles      []CycleSource
	Chemistry   []ChemistrySource
	Live        []LiveSource
	Temperature []TemperatureSource
}

// Options configures the platform chains.
type Options struct {
	// ReportPath is where the diagnostic report is kept.
	ReportPath string
	// ReportCommand generates the report. Nil selects the platform
	// default, an empty slice disables generation.
	ReportCommand []string
	// ChargeLog feeds the cycle estimator. May be nil.
	ChargeLog ChargeLogReader
	// Run runs external commands. Nil uses ExecRunner.
	Run Runner
	// SysfsRoot overrides the sysfs mount point on Linux.
	SysfsRoot string
}

func (o Options) runner() Runner {
	if o.Run == nil {
		return ExecRunner
	}
	return o.Run
}

func (o Options) reportCommand(def []string) []string {
	if o.ReportCommand == nil {
		return def
	}
	return o.ReportCommand
}
