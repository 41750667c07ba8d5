package source

import "github.com/charlie0129/battlife/pkg/powerinfo"

// systemPowerStatus mirrors SYSTEM_POWER_STATUS from the Windows API.
type systemPowerStatus struct {
	ACLineStatus        byte
	BatteryFlag         byte
	BatteryLifePercent  byte
	SystemStatusFlag    byte
	BatteryLifeTime     uint32
	BatteryFullLifeTime uint32
}

const (
	powerStatusUnknownByte = 255
	powerStatusUnknownTime = 0xFFFFFFFF

	batteryFlagCharging  = 8
	batteryFlagNoBattery = 128
)

// present reports whether a battery is installed, and whether the answer is
// known at all.
func (s systemPowerStatus) present() (present, known bool) {
	if s.BatteryFlag == powerStatusUnknownByte {
		return false, false
	}
	return s.BatteryFlag&batteryFlagNoBattery == 0, true
}

func (s systemPowerStatus) live() powerinfo.Live {
	l := powerinfo.NewLive()

	switch s.ACLineStatus {
	case 0, 1:
		ac := s.ACLineStatus == 1
		l.ACOnline = &ac
	}
	if s.BatteryLifePercent != powerStatusUnknownByte && s.BatteryLifePercent <= 100 {
		p := int(s.BatteryLifePercent)
		l.Percent = &p
	}

	switch {
	case s.BatteryFlag != powerStatusUnknownByte && s.BatteryFlag&batteryFlagCharging != 0:
		charging := true
		l.Charging = &charging
	case l.ACOnline != nil && l.Percent != nil:
		charging := *l.ACOnline && *l.Percent < 100
		l.Charging = &charging
	}

	if l.ACOnline != nil {
		switch {
		case !*l.ACOnline:
			l.State = powerinfo.Discharging
		case l.Charging != nil && *l.Charging:
			l.State = powerinfo.Charging
		case l.Percent != nil && *l.Percent == 100:
			l.State = powerinfo.Full
		}
	}

	if s.BatteryLifeTime != powerStatusUnknownTime && l.State == powerinfo.Discharging {
		l.TimeToEmpty = int(s.BatteryLifeTime)
	}
	return l
}
