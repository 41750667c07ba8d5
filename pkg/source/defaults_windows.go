//go:build windows

package source

const Supported = true

// DefaultReportCommand asks powercfg for an XML battery report.
var DefaultReportCommand = []string{"powercfg", "/batteryreport", "/xml", "/output", ReportPathPlaceholder}

var cycleCountScript = "(Get-CimInstance -Namespace root\\wmi -ClassName BatteryCycleCount -ErrorAction SilentlyContinue | Select-Object -First 1).CycleCount"

// Defaults returns the Windows chains. GetSystemPowerStatus is the native
// source, CIM the instrumentation.
func Defaults(o Options) Chains {
	native := NewPowerStatus()
	sensor := NewSensor()
	mgmt := NewManagement(NewCIM(o.runner()))
	report := NewReport(o.ReportPath, o.reportCommand(DefaultReportCommand), WithReportRunner(o.runner()))
	cli := NewCLICycles([]string{"powershell.exe", "-NoProfile", "-NonInteractive", "-Command", cycleCountScript}, ParseFirstInteger, o.runner())
	est := NewEstimator(o.ChargeLog)

	return Chains{
		Presence:    []PresenceDetector{native, sensor},
		Identity:    []IdentitySource{mgmt},
		Static:      []StaticSource{report, mgmt},
		Cycles:      []CycleSource{mgmt, report, cli, est},
		Chemistry:   []ChemistrySource{mgmt, report, mgmt.ByCode()},
		Live:        []LiveSource{native, sensor, mgmt},
		Temperature: []TemperatureSource{mgmt},
	}
}
