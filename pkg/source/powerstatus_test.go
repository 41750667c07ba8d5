package source

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/charlie0129/battlife/pkg/powerinfo"
)

func TestPowerStatusLive(t *testing.T) {
	s := systemPowerStatus{ACLineStatus: 0, BatteryFlag: 1, BatteryLifePercent: 64, BatteryLifeTime: 7200, BatteryFullLifeTime: powerStatusUnknownTime}
	l := s.live()
	assert.Equal(t, 64, *l.Percent)
	assert.False(t, *l.ACOnline)
	assert.False(t, *l.Charging)
	assert.Equal(t, powerinfo.Discharging, l.State)
	assert.Equal(t, 7200, l.TimeToEmpty)
	assert.Equal(t, powerinfo.TimeUnknown, l.TimeToFull)

	s = systemPowerStatus{ACLineStatus: 1, BatteryFlag: batteryFlagCharging, BatteryLifePercent: 80, BatteryLifeTime: powerStatusUnknownTime}
	l = s.live()
	assert.True(t, *l.Charging)
	assert.Equal(t, powerinfo.Charging, l.State)
	assert.Equal(t, powerinfo.TimeUnknown, l.TimeToEmpty)

	s = systemPowerStatus{ACLineStatus: 1, BatteryFlag: 0, BatteryLifePercent: 100}
	assert.Equal(t, powerinfo.Full, s.live().State)
}

func TestPowerStatusSentinels(t *testing.T) {
	s := systemPowerStatus{ACLineStatus: powerStatusUnknownByte, BatteryFlag: powerStatusUnknownByte, BatteryLifePercent: powerStatusUnknownByte, BatteryLifeTime: powerStatusUnknownTime}
	l := s.live()
	assert.Nil(t, l.Percent)
	assert.Nil(t, l.ACOnline)
	assert.Nil(t, l.Charging)
	assert.Equal(t, powerinfo.Unknown, l.State)
	assert.Equal(t, powerinfo.TimeUnknown, l.TimeToEmpty)

	_, known := s.present()
	assert.False(t, known)

	present, known := systemPowerStatus{BatteryFlag: batteryFlagNoBattery}.present()
	assert.True(t, known)
	assert.False(t, present)
}
