package daemon

import (
	"fmt"
	"time"

	"github.com/charlie0129/battlife/pkg/events"
	"github.com/charlie0129/battlife/pkg/powerinfo"
)

// AlertThresholds configures when alerts are raised.
type AlertThresholds struct {
	LowBatteryPercent      int
	HighTemperatureCelsius float64
	Cooldown               time.Duration
}

// alertTracker raises at most one alert per threshold crossing. The flag of
// a condition is set on the crossing and cleared only when the condition
// clears. A crossing that happens within the cooldown of the previous alert
// of the same kind sets the flag without raising anything.
type alertTracker struct {
	flags      powerinfo.AlertFlags
	lastRaised map[events.AlertKind]time.Time
}

func newAlertTracker() *alertTracker {
	return &alertTracker{lastRaised: make(map[events.AlertKind]time.Time)}
}

func (t *alertTracker) evaluate(l powerinfo.Live, th AlertThresholds, now time.Time) (powerinfo.AlertFlags, []events.Alert) {
	var raised []events.Alert

	hot := l.TemperatureC != nil && *l.TemperatureC > th.HighTemperatureCelsius
	if a, ok := t.step(&t.flags.HighTemperature, hot, events.AlertHighTemperature, th.Cooldown, now); ok {
		a.Value = *l.TemperatureC
		a.Threshold = th.HighTemperatureCelsius
		a.Message = fmt.Sprintf("battery temperature is %.1f°C, above %.1f°C", a.Value, a.Threshold)
		raised = append(raised, a)
	}

	// Unknown charging state counts as charging so it never raises a false alarm.
	charging := l.Charging == nil || *l.Charging
	low := l.Percent != nil && *l.Percent < th.LowBatteryPercent && !charging
	if a, ok := t.step(&t.flags.LowBattery, low, events.AlertLowBattery, th.Cooldown, now); ok {
		a.Value = float64(*l.Percent)
		a.Threshold = float64(th.LowBatteryPercent)
		a.Message = fmt.Sprintf("battery is at %d%% and not charging", *l.Percent)
		raised = append(raised, a)
	}

	return t.flags, raised
}

func (t *alertTracker) step(flag *bool, active bool, kind events.AlertKind, cooldown time.Duration, now time.Time) (events.Alert, bool) {
	if !active {
		*flag = false
		return events.Alert{}, false
	}
	if *flag {
		return events.Alert{}, false
	}

	*flag = true
	if last, ok := t.lastRaised[kind]; ok && now.Sub(last) < cooldown {
		return events.Alert{}, false
	}
	t.lastRaised[kind] = now
	return events.Alert{Kind: kind, Ts: now.Unix()}, true
}
