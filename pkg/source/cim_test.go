package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battlife/pkg/powerinfo"
)

const cimOutput = `{
 "system": {"Manufacturer": "Dell Inc.", "Model": "XPS 15 9520"},
 "static": {"ManufactureName": "SMP", "SerialNumber": "3142", "DeviceName": "DELL M59JH18", "DesignedCapacity": 86000, "Chemistry": 1313818956},
 "full": [{"FullChargedCapacity": 79120}, {"FullChargedCapacity": 1}],
 "cycles": {"CycleCount": 145},
 "battery": {"Name": "Primary", "Chemistry": 6, "EstimatedChargeRemaining": 57, "BatteryStatus": 1, "EstimatedRunTime": 190},
 "status": {"PowerOnline": false, "Charging": false, "Discharging": true, "Voltage": 12110, "DischargeRate": 15350, "ChargeRate": 0},
 "thermal": [{"CurrentTemperature": 3132}, {"CurrentTemperature": 3332}]
}`

func TestParseCIM(t *testing.T) {
	data, err := parseCIM([]byte(cimOutput))
	require.NoError(t, err)
	assert.Len(t, data["full"], 2)
	assert.Len(t, data["system"], 1)

	s := snapshotFromCIM(data)
	assert.Equal(t, "Dell Inc.", s.SystemManufacturer)
	assert.Equal(t, "XPS 15 9520", s.SystemModel)
	assert.Equal(t, "SMP", s.Manufacturer)
	assert.Equal(t, "DELL M59JH18", s.Name)
	assert.Equal(t, "LION", s.Chemistry)
	assert.Equal(t, 6, *s.ChemistryCode)
	assert.Equal(t, 86000, *s.DesignCapacity)
	assert.Equal(t, 79120, *s.FullChargeCapacity)
	assert.Equal(t, 145, *s.CycleCount)
	assert.Equal(t, 57.0, *s.Percent)
	assert.Equal(t, powerinfo.Discharging, s.State)
	assert.False(t, *s.ACOnline)
	assert.Equal(t, 12110, *s.VoltageMV)
	assert.InDelta(t, -15.35, *s.PowerW, 1e-9)
	assert.Equal(t, 190*60, *s.TimeToEmpty)
	require.Len(t, s.Temperatures, 2)
	assert.InDelta(t, 40.05, s.Temperatures[0], 1e-9)
}

func TestParseCIMEdgeCases(t *testing.T) {
	data, err := parseCIM([]byte("  "))
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = parseCIM([]byte("not json"))
	assert.Error(t, err)

	data, err = parseCIM([]byte(`{"battery": null, "cycles": [], "static": {"Chemistry": "junk"}}`))
	require.NoError(t, err)
	s := snapshotFromCIM(data)
	assert.Nil(t, s.CycleCount)
	assert.Empty(t, s.Chemistry)

	data, err = parseCIM([]byte(`{"battery": {"EstimatedRunTime": 71582788, "BatteryStatus": 2}}`))
	require.NoError(t, err)
	s = snapshotFromCIM(data)
	assert.Nil(t, s.TimeToEmpty)
	assert.True(t, *s.ACOnline)
	assert.Equal(t, powerinfo.Unknown, s.State)
}

func TestDecodeFourCC(t *testing.T) {
	assert.Equal(t, "LION", decodeFourCC(0x4E4F494C))
	assert.Equal(t, "LiP", decodeFourCC(0x0050694C))
	assert.Empty(t, decodeFourCC(0))
	assert.Empty(t, decodeFourCC(0x01020304))
}

func TestCIMQuery(t *testing.T) {
	var gotArgs []string
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotArgs = append([]string{name}, args...)
		return []byte(`{"cycles": {"CycleCount": 88}}`), nil
	}
	m := NewManagement(NewCIM(run))
	c, ok := m.CycleCount(context.Background(), CycleHint{}).Get()
	require.True(t, ok)
	assert.Equal(t, 88, c.Count)
	assert.Equal(t, "powershell.exe", gotArgs[0])
	assert.Contains(t, gotArgs[len(gotArgs)-1], "BatteryCycleCount")
	assert.Contains(t, gotArgs[len(gotArgs)-1], "ConvertTo-Json")
}
