//go:build linux

package source

// Supported reports whether this platform has source adapters.
const Supported = true

// Defaults returns the Linux chains. The kernel power supply class is the
// native source, UPower the instrumentation.
func Defaults(o Options) Chains {
	sys := NewSysfs(o.SysfsRoot)
	sensor := NewSensor()
	mgmt := NewManagement(NewUPower(sys))
	report := NewReport(o.ReportPath, o.reportCommand(nil), WithReportRunner(o.runner()))
	cli := NewCLICycles([]string{"upower", "--dump"}, ParseUPowerDump, o.runner())
	est := NewEstimator(o.ChargeLog)

	return Chains{
		Presence:    []PresenceDetector{sys, sensor},
		Identity:    []IdentitySource{sys, mgmt},
		Static:      []StaticSource{report, mgmt},
		Cycles:      []CycleSource{mgmt, report, cli, est},
		Chemistry:   []ChemistrySource{mgmt, report, mgmt.ByCode()},
		Live:        []LiveSource{sys, sensor, mgmt},
		Temperature: []TemperatureSource{mgmt},
	}
}
