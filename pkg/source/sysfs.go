package source

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charlie0129/battlife/pkg/normalize"
	"github.com/charlie0129/battlife/pkg/powerinfo"
)

// DefaultSysfsRoot is where the kernel exposes power supplies, DMI and
// thermal zones.
const DefaultSysfsRoot = "/sys"

// Sysfs reads the kernel power supply class. It is the native power status
// source on Linux and also backs the instrumentation source when UPower is
// not reachable.
type Sysfs struct {
	Root string
}

func NewSysfs(root string) *Sysfs {
	if root == "" {
		root = DefaultSysfsRoot
	}
	return &Sysfs{Root: root}
}

func (s *Sysfs) Name() string {
	return "sysfs"
}

func parseUevent(data string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		if k, v, ok := strings.Cut(strings.TrimSpace(line), "="); ok {
			props[k] = v
		}
	}
	return props
}

// supplies returns the uevent properties of the first system battery and
// of every mains supply.
func (s *Sysfs) supplies() (bat map[string]string, mains []map[string]string, err error) {
	dirs, err := filepath.Glob(filepath.Join(s.Root, "class/power_supply/*"))
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(dirs)

	for _, dir := range dirs {
		data, err := os.ReadFile(filepath.Join(dir, "uevent"))
		if err != nil {
			continue
		}
		props := parseUevent(string(data))
		switch props["POWER_SUPPLY_TYPE"] {
		case "Battery":
			// Peripheral batteries (mice, headsets) report scope Device.
			if props["POWER_SUPPLY_SCOPE"] == "Device" {
				continue
			}
			if bat == nil {
				bat = props
			}
		case "Mains", "USB":
			mains = append(mains, props)
		}
	}
	return bat, mains, nil
}

func (s *Sysfs) Present(_ context.Context) Result[bool] {
	bat, _, err := s.supplies()
	if err != nil {
		return Unavailable[bool]("failed to list power supplies: %v", err)
	}
	if bat == nil {
		return OK(false)
	}
	if p, ok := bat["POWER_SUPPLY_PRESENT"]; ok {
		return OK(p == "1")
	}
	return OK(true)
}

func (s *Sysfs) SystemIdentity(_ context.Context) Result[SystemIdentity] {
	id := readDMI(s.Root)
	if id.Manufacturer == "" && id.Model == "" {
		return Unavailable[SystemIdentity]("no DMI information")
	}
	return OK(id)
}

func (s *Sysfs) Live(_ context.Context) Result[powerinfo.Live] {
	bat, mains, err := s.supplies()
	if err != nil {
		return Unavailable[powerinfo.Live]("failed to list power supplies: %v", err)
	}
	if bat == nil {
		return Unavailable[powerinfo.Live]("no battery in power_supply class")
	}
	return OK(liveFromUevent(bat, acOnline(mains)))
}

// batteryUevent exposes the raw battery properties to the instrumentation
// fallback.
func (s *Sysfs) batteryUevent() map[string]string {
	bat, _, err := s.supplies()
	if err != nil {
		return nil
	}
	return bat
}

func acOnline(mains []map[string]string) *bool {
	if len(mains) == 0 {
		return nil
	}
	online := false
	for _, m := range mains {
		if m["POWER_SUPPLY_ONLINE"] == "1" {
			online = true
		}
	}
	return &online
}

func ueventInt(props map[string]string, key string) *int {
	v, ok := props[key]
	if !ok {
		return nil
	}
	i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return nil
	}
	r := int(i)
	return &r
}

func ueventState(status string) powerinfo.BatteryState {
	switch status {
	case "Charging":
		return powerinfo.Charging
	case "Discharging", "Not charging":
		return powerinfo.Discharging
	case "Full":
		return powerinfo.Full
	default:
		return powerinfo.Unknown
	}
}

// ueventEnergy returns the energy value for key (without the ENERGY_/CHARGE_
// prefix) in mWh. Batteries that report charge in µAh are converted with
// the design voltage.
func ueventEnergy(props map[string]string, key string) *int {
	if e := ueventInt(props, "POWER_SUPPLY_ENERGY_"+key); e != nil {
		v := *e / 1000
		return &v
	}
	c := ueventInt(props, "POWER_SUPPLY_CHARGE_"+key)
	volt := ueventInt(props, "POWER_SUPPLY_VOLTAGE_MIN_DESIGN")
	if volt == nil || *volt <= 0 {
		volt = ueventInt(props, "POWER_SUPPLY_VOLTAGE_NOW")
	}
	if c == nil || volt == nil || *volt <= 0 {
		return nil
	}
	v := int(float64(*c) * float64(*volt) / 1e9)
	return &v
}

// uevent power in watts, always non-negative.
func ueventPower(props map[string]string) *float64 {
	if p := ueventInt(props, "POWER_SUPPLY_POWER_NOW"); p != nil {
		w := math.Abs(float64(*p)) / 1e6
		return &w
	}
	cur := ueventInt(props, "POWER_SUPPLY_CURRENT_NOW")
	volt := ueventInt(props, "POWER_SUPPLY_VOLTAGE_NOW")
	if cur == nil || volt == nil {
		return nil
	}
	w := math.Abs(float64(*cur)) * float64(*volt) / 1e12
	return &w
}

func liveFromUevent(props map[string]string, ac *bool) powerinfo.Live {
	l := powerinfo.NewLive()
	l.State = ueventState(props["POWER_SUPPLY_STATUS"])

	if c := ueventInt(props, "POWER_SUPPLY_CAPACITY"); c != nil {
		p := normalize.ClampInt(*c, 0, 100)
		l.Percent = &p
	}
	if l.State != powerinfo.Unknown {
		charging := l.State == powerinfo.Charging
		l.Charging = &charging
	}
	if ac != nil {
		v := *ac
		l.ACOnline = &v
	} else if l.State == powerinfo.Charging {
		v := true
		l.ACOnline = &v
	}
	if v := ueventInt(props, "POWER_SUPPLY_VOLTAGE_NOW"); v != nil {
		mv := *v / 1000
		l.VoltageMV = &mv
	}

	power := ueventPower(props)
	if power != nil {
		w := *power
		if l.State == powerinfo.Discharging {
			w = -w
		}
		l.PowerW = &w
	}

	if t := ueventInt(props, "POWER_SUPPLY_TIME_TO_EMPTY_NOW"); t != nil {
		l.TimeToEmpty = *t
	}
	if t := ueventInt(props, "POWER_SUPPLY_TIME_TO_FULL_NOW"); t != nil {
		l.TimeToFull = *t
	}

	now := ueventEnergy(props, "NOW")
	full := ueventEnergy(props, "FULL")
	if power != nil && *power > 0 && now != nil {
		switch l.State {
		case powerinfo.Discharging:
			if l.TimeToEmpty == powerinfo.TimeUnknown {
				l.TimeToEmpty = int(float64(*now) / (*power * 1000) * 3600)
			}
		case powerinfo.Charging:
			if l.TimeToFull == powerinfo.TimeUnknown && full != nil && *full > *now {
				l.TimeToFull = int(float64(*full-*now) / (*power * 1000) * 3600)
			}
		}
	}

	return l
}

// staticFromUevent extracts the battery identity and capacities.
func staticFromUevent(props map[string]string) StaticInfo {
	return StaticInfo{
		Name:               strings.TrimSpace(props["POWER_SUPPLY_MODEL_NAME"]),
		Manufacturer:       strings.TrimSpace(props["POWER_SUPPLY_MANUFACTURER"]),
		Serial:             strings.TrimSpace(props["POWER_SUPPLY_SERIAL_NUMBER"]),
		DesignCapacity:     ueventEnergy(props, "FULL_DESIGN"),
		FullChargeCapacity: ueventEnergy(props, "FULL"),
	}
}

func readDMI(root string) SystemIdentity {
	read := func(name string) string {
		b, err := os.ReadFile(filepath.Join(root, "class/dmi/id", name))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(string(b))
	}
	id := SystemIdentity{
		Manufacturer: read("sys_vendor"),
		Model:        read("product_name"),
	}
	// Lenovo puts the marketing name in product_version.
	if v := read("product_version"); v != "" && strings.Contains(strings.ToLower(id.Manufacturer), "lenovo") {
		id.Model = v
	}
	return id
}

// readThermalZones returns the thermal zone readings in °C, ACPI zones
// first.
func readThermalZones(root string) []float64 {
	dirs, err := filepath.Glob(filepath.Join(root, "class/thermal/thermal_zone*"))
	if err != nil {
		return nil
	}
	sort.Strings(dirs)

	var acpi, other []float64
	for _, dir := range dirs {
		b, err := os.ReadFile(filepath.Join(dir, "temp"))
		if err != nil {
			continue
		}
		milli, err := strconv.Atoi(strings.TrimSpace(string(b)))
		if err != nil {
			continue
		}
		c := float64(milli) / 1000
		typ, _ := os.ReadFile(filepath.Join(dir, "type"))
		if strings.TrimSpace(string(typ)) == "acpitz" {
			acpi = append(acpi, c)
		} else {
			other = append(other, c)
		}
	}
	return append(acpi, other...)
}
