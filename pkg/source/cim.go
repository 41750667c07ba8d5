package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/charlie0129/battlife/pkg/normalize"
	"github.com/charlie0129/battlife/pkg/powerinfo"
)

const (
	cimTimeout = 15 * time.Second

	// Win32_Battery.EstimatedRunTime when on AC power.
	cimRunTimeUnknown = 71582788
)

type cimQuery struct {
	Key       string
	Namespace string
	Class     string
}

var (
	cimSystem   = cimQuery{"system", `root\cimv2`, "Win32_ComputerSystem"}
	cimBattery  = cimQuery{"battery", `root\cimv2`, "Win32_Battery"}
	cimStatic   = cimQuery{"static", `root\wmi`, "BatteryStaticData"}
	cimFull     = cimQuery{"full", `root\wmi`, "BatteryFullChargedCapacity"}
	cimCycles   = cimQuery{"cycles", `root\wmi`, "BatteryCycleCount"}
	cimStatus   = cimQuery{"status", `root\wmi`, "BatteryStatus"}
	cimThermal  = cimQuery{"thermal", `root\wmi`, "MSAcpi_ThermalZoneTemperature"}
	cimQueryFor = map[powerinfo.Field][]cimQuery{
		powerinfo.FieldSystemIdentity: {cimSystem},
		powerinfo.FieldIdentity:       {cimStatic, cimFull, cimBattery},
		powerinfo.FieldCapacity:       {cimStatic, cimFull, cimBattery},
		powerinfo.FieldCycleCount:     {cimCycles},
		powerinfo.FieldChemistry:      {cimStatic, cimBattery},
		powerinfo.FieldLive:           {cimBattery, cimStatus},
		powerinfo.FieldTemperature:    {cimThermal},
	}
)

// CIM queries the Windows management instrumentation through PowerShell.
// Each field group is one PowerShell invocation returning a JSON object
// keyed by query.
type CIM struct {
	run     Runner
	timeout time.Duration
}

func NewCIM(run Runner) *CIM {
	if run == nil {
		run = ExecRunner
	}
	return &CIM{run: run, timeout: cimTimeout}
}

func (c *CIM) Name() string {
	return "cim"
}

func (c *CIM) Query(ctx context.Context, group powerinfo.Field) (*Snapshot, error) {
	queries, ok := cimQueryFor[group]
	if !ok {
		return nil, fmt.Errorf("no CIM query for %s", group)
	}
	out, err := runWithTimeout(ctx, c.run, c.timeout,
		"powershell.exe", "-NoProfile", "-NonInteractive", "-Command", cimScript(queries))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "CIM query failed")
	}
	data, err := parseCIM(out)
	if err != nil {
		return nil, err
	}
	return snapshotFromCIM(data), nil
}

// cimScript builds a script that collects every class into one hashtable.
// Missing classes are silently empty.
func cimScript(queries []cimQuery) string {
	var b strings.Builder
	b.WriteString("$ErrorActionPreference='SilentlyContinue';$r=@{};")
	for _, q := range queries {
		fmt.Fprintf(&b, "$r['%s']=@(Get-CimInstance -Namespace '%s' -ClassName %s | Select-Object -Property * -ExcludeProperty Cim*);",
			q.Key, q.Namespace, q.Class)
	}
	b.WriteString("$r | ConvertTo-Json -Depth 4 -Compress")
	return b.String()
}

// parseCIM decodes the script output. ConvertTo-Json unwraps single element
// arrays, so each key may hold an object or an array of objects.
func parseCIM(out []byte) (map[string][]map[string]any, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return map[string][]map[string]any{}, nil
	}

	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(out))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, pkgerrors.Wrap(err, "malformed CIM output")
	}

	ret := make(map[string][]map[string]any, len(raw))
	for k, v := range raw {
		v = bytes.TrimSpace(v)
		if len(v) == 0 || bytes.Equal(v, []byte("null")) {
			continue
		}
		d := json.NewDecoder(bytes.NewReader(v))
		d.UseNumber()
		if v[0] == '[' {
			var list []map[string]any
			if err := d.Decode(&list); err != nil {
				return nil, pkgerrors.Wrapf(err, "malformed CIM instances for %s", k)
			}
			ret[k] = list
			continue
		}
		var obj map[string]any
		if err := d.Decode(&obj); err != nil {
			return nil, pkgerrors.Wrapf(err, "malformed CIM instance for %s", k)
		}
		ret[k] = []map[string]any{obj}
	}
	return ret, nil
}

func first(data map[string][]map[string]any, key string) map[string]any {
	for _, inst := range data[key] {
		if inst != nil {
			return inst
		}
	}
	return nil
}

func cimString(inst map[string]any, key string) string {
	if inst == nil {
		return ""
	}
	s, _ := inst[key].(string)
	return strings.TrimSpace(s)
}

func cimInt(inst map[string]any, key string) *int {
	if inst == nil {
		return nil
	}
	return normalize.IntPtr(inst[key])
}

func cimBool(inst map[string]any, key string) *bool {
	if inst == nil {
		return nil
	}
	b, ok := inst[key].(bool)
	if !ok {
		return nil
	}
	return &b
}

// decodeFourCC decodes BatteryStaticData.Chemistry, four ASCII characters
// packed little-endian into a uint32.
func decodeFourCC(v int) string {
	if v <= 0 {
		return ""
	}
	b := []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
	b = bytes.TrimRight(b, "\x00 ")
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return ""
		}
	}
	return string(b)
}

// decikelvin converts MSAcpi_ThermalZoneTemperature readings to °C.
func decikelvin(v int) float64 {
	return float64(v)/10 - 273.15
}

func snapshotFromCIM(data map[string][]map[string]any) *Snapshot {
	s := &Snapshot{}

	if sys := first(data, "system"); sys != nil {
		s.SystemManufacturer = cimString(sys, "Manufacturer")
		s.SystemModel = cimString(sys, "Model")
	}

	winBat := first(data, "battery")

	if st := first(data, "static"); st != nil {
		s.Manufacturer = cimString(st, "ManufactureName")
		s.Serial = cimString(st, "SerialNumber")
		s.Name = cimString(st, "DeviceName")
		s.DesignCapacity = cimInt(st, "DesignedCapacity")
		if c := cimInt(st, "Chemistry"); c != nil {
			s.Chemistry = decodeFourCC(*c)
		}
	}
	if s.Name == "" {
		s.Name = cimString(winBat, "Name")
	}
	if full := first(data, "full"); full != nil {
		s.FullChargeCapacity = cimInt(full, "FullChargedCapacity")
	}
	if cyc := first(data, "cycles"); cyc != nil {
		s.CycleCount = cimInt(cyc, "CycleCount")
	}

	if winBat != nil {
		s.ChemistryCode = cimInt(winBat, "Chemistry")
		if p := cimInt(winBat, "EstimatedChargeRemaining"); p != nil {
			f := float64(*p)
			s.Percent = &f
		}
		if st := cimInt(winBat, "BatteryStatus"); st != nil {
			applyWin32BatteryStatus(s, *st)
		}
		if rt := cimInt(winBat, "EstimatedRunTime"); rt != nil && *rt > 0 && *rt != cimRunTimeUnknown {
			sec := *rt * 60
			s.TimeToEmpty = &sec
		}
	}

	if st := first(data, "status"); st != nil {
		if ac := cimBool(st, "PowerOnline"); ac != nil {
			s.ACOnline = ac
		}
		if ch := cimBool(st, "Charging"); ch != nil {
			s.Charging = ch
			if *ch {
				s.State = powerinfo.Charging
			}
		}
		if dis := cimBool(st, "Discharging"); dis != nil && *dis {
			s.State = powerinfo.Discharging
		}
		if v := cimInt(st, "Voltage"); v != nil && *v > 0 {
			s.VoltageMV = v
		}
		rate := cimInt(st, "ChargeRate")
		if dr := cimInt(st, "DischargeRate"); dr != nil && *dr > 0 {
			w := -float64(*dr) / 1000
			s.PowerW = &w
		} else if rate != nil {
			w := float64(*rate) / 1000
			s.PowerW = &w
		}
	}

	for _, th := range data["thermal"] {
		if v := cimInt(th, "CurrentTemperature"); v != nil && *v > 0 {
			s.Temperatures = append(s.Temperatures, decikelvin(*v))
		}
	}

	return s
}

// applyWin32BatteryStatus maps the Win32_Battery.BatteryStatus code.
func applyWin32BatteryStatus(s *Snapshot, code int) {
	set := func(state powerinfo.BatteryState, ac bool) {
		s.State = state
		s.ACOnline = &ac
		if state != powerinfo.Unknown {
			charging := state == powerinfo.Charging
			s.Charging = &charging
		}
	}
	switch code {
	case 1, 4, 5:
		set(powerinfo.Discharging, false)
	case 2:
		set(powerinfo.Unknown, true)
	case 3:
		set(powerinfo.Full, true)
	case 6, 7, 8, 9:
		set(powerinfo.Charging, true)
	}
}
