package source

import (
	"context"
	"math"

	"github.com/distatus/battery"

	"github.com/charlie0129/battlife/pkg/normalize"
	"github.com/charlie0129/battlife/pkg/powerinfo"
)

var getBatteries = battery.GetAll

// Sensor is the cross-platform battery sensor library. It only knows the
// first battery's live status.
type Sensor struct{}

func NewSensor() *Sensor {
	return &Sensor{}
}

func (s *Sensor) Name() string {
	return "battery-sensor"
}

func firstBattery() (*battery.Battery, error) {
	bats, err := getBatteries()
	for _, b := range bats {
		if b != nil {
			return b, nil
		}
	}
	return nil, err
}

func (s *Sensor) Present(_ context.Context) Result[bool] {
	b, err := firstBattery()
	if b == nil && err != nil {
		return Unavailable[bool]("%v", err)
	}
	return OK(b != nil)
}

func (s *Sensor) Live(_ context.Context) Result[powerinfo.Live] {
	b, err := firstBattery()
	if b == nil {
		if err != nil {
			return Unavailable[powerinfo.Live]("%v", err)
		}
		return Unavailable[powerinfo.Live]("no battery found")
	}
	return OK(liveFromSensor(b))
}

func liveFromSensor(b *battery.Battery) powerinfo.Live {
	l := powerinfo.NewLive()

	if b.Full > 0 {
		p := normalize.ClampInt(int(math.Round(b.Current/b.Full*100)), 0, 100)
		l.Percent = &p
	}

	switch b.State {
	case battery.Charging:
		l.State = powerinfo.Charging
	case battery.Discharging, battery.Empty:
		l.State = powerinfo.Discharging
	case battery.Full:
		l.State = powerinfo.Full
	}
	if l.State != powerinfo.Unknown {
		charging := l.State == powerinfo.Charging
		l.Charging = &charging
		ac := l.State != powerinfo.Discharging
		l.ACOnline = &ac
	}

	if b.Voltage > 0 {
		mv := int(math.Round(b.Voltage * 1000))
		l.VoltageMV = &mv
	}

	if b.ChargeRate > 0 || l.State == powerinfo.Full {
		w := b.ChargeRate / 1000
		if l.State == powerinfo.Discharging {
			w = -w
		}
		l.PowerW = &w
	}

	if b.ChargeRate > 0 {
		switch l.State {
		case powerinfo.Discharging:
			l.TimeToEmpty = int(b.Current / b.ChargeRate * 3600)
		case powerinfo.Charging:
			if b.Full > b.Current {
				l.TimeToFull = int((b.Full - b.Current) / b.ChargeRate * 3600)
			}
		}
	}
	return l
}
