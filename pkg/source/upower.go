package source

import (
	"math"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/charlie0129/battlife/pkg/normalize"
	"github.com/charlie0129/battlife/pkg/powerinfo"
)

const (
	upowerDest   = "org.freedesktop.UPower"
	upowerPath   = "/org/freedesktop/UPower"
	upowerIface  = "org.freedesktop.UPower"
	upowerDevice = "org.freedesktop.UPower.Device"

	upowerTypeLinePower = 1
	upowerTypeBattery   = 2
)

// UPower technology enum to the numeric chemistry code table.
var upowerTechnologyCode = map[int]int{
	0: 2, // unknown
	1: 6, // lithium-ion
	2: 8, // lithium-polymer
	3: 6, // lithium-iron-phosphate, closest code
	4: 3, // lead-acid
	5: 4, // nickel-cadmium
	6: 5, // nickel-metal-hydride
}

type upowerProps map[string]dbus.Variant

func (p upowerProps) value(key string) any {
	v, ok := p[key]
	if !ok {
		return nil
	}
	return v.Value()
}

func (p upowerProps) str(key string) string {
	s, _ := p.value(key).(string)
	return strings.TrimSpace(s)
}

func (p upowerProps) boolean(key string) (bool, bool) {
	b, ok := p.value(key).(bool)
	return b, ok
}

func (p upowerProps) float(key string) *float64 {
	return normalize.FloatPtr(p.value(key))
}

func (p upowerProps) integer(key string) *int {
	return normalize.IntPtr(p.value(key))
}

// wattHours converts UPower's Wh to mWh. Zero means unknown.
func wattHours(f *float64) *int {
	if f == nil || *f <= 0 {
		return nil
	}
	v := int(math.Round(*f * 1000))
	return &v
}

func upowerState(state int) powerinfo.BatteryState {
	switch state {
	case 1, 5: // charging, pending charge
		return powerinfo.Charging
	case 2, 3, 6: // discharging, empty, pending discharge
		return powerinfo.Discharging
	case 4:
		return powerinfo.Full
	default:
		return powerinfo.Unknown
	}
}

// snapshotFromUPower converts the properties of a battery device. line is
// the Online property of the line power device, if any.
func snapshotFromUPower(bat upowerProps, line *bool) *Snapshot {
	s := &Snapshot{
		Name:               bat.str("Model"),
		Manufacturer:       bat.str("Vendor"),
		Serial:             bat.str("Serial"),
		DesignCapacity:     wattHours(bat.float("EnergyFullDesign")),
		FullChargeCapacity: wattHours(bat.float("EnergyFull")),
		Percent:            bat.float("Percentage"),
		ACOnline:           cloneBool(line),
	}

	// -1 when the kernel does not expose a counter.
	if c := bat.integer("ChargeCycles"); c != nil && *c != -1 {
		s.CycleCount = c
	}

	if t := bat.integer("Technology"); t != nil {
		if code, ok := upowerTechnologyCode[*t]; ok && *t != 0 {
			s.ChemistryCode = &code
		}
	}

	if st := bat.integer("State"); st != nil {
		s.State = upowerState(*st)
	}
	if s.State != powerinfo.Unknown {
		charging := s.State == powerinfo.Charging
		s.Charging = &charging
	}

	if v := bat.float("Voltage"); v != nil && *v > 0 {
		mv := int(math.Round(*v * 1000))
		s.VoltageMV = &mv
	}
	if r := bat.float("EnergyRate"); r != nil {
		w := math.Abs(*r)
		if s.State == powerinfo.Discharging {
			w = -w
		}
		s.PowerW = &w
	}
	if t := bat.integer("TimeToEmpty"); t != nil && *t > 0 {
		s.TimeToEmpty = t
	}
	if t := bat.integer("TimeToFull"); t != nil && *t > 0 {
		s.TimeToFull = t
	}
	return s
}

// fillFromUevent fills what UPower left empty from the kernel power supply
// properties. The descriptive technology string is only available there.
func (s *Snapshot) fillFromUevent(props map[string]string) {
	if props == nil {
		return
	}
	st := staticFromUevent(props)
	if s.Name == "" {
		s.Name = st.Name
	}
	if s.Manufacturer == "" {
		s.Manufacturer = st.Manufacturer
	}
	if s.Serial == "" {
		s.Serial = st.Serial
	}
	if s.DesignCapacity == nil {
		s.DesignCapacity = st.DesignCapacity
	}
	if s.FullChargeCapacity == nil {
		s.FullChargeCapacity = st.FullChargeCapacity
	}
	if s.CycleCount == nil {
		s.CycleCount = ueventInt(props, "POWER_SUPPLY_CYCLE_COUNT")
	}
	if tech := strings.TrimSpace(props["POWER_SUPPLY_TECHNOLOGY"]); tech != "" && tech != "Unknown" {
		s.Chemistry = tech
	}

	l := liveFromUevent(props, s.ACOnline)
	if s.Percent == nil && l.Percent != nil {
		p := float64(*l.Percent)
		s.Percent = &p
	}
	if s.State == powerinfo.Unknown {
		s.State = l.State
	}
	if s.Charging == nil {
		s.Charging = cloneBool(l.Charging)
	}
	if s.VoltageMV == nil {
		s.VoltageMV = l.VoltageMV
	}
	if s.PowerW == nil {
		s.PowerW = l.PowerW
	}
}
