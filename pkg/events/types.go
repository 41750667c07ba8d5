package events

import (
	"encoding/json"

	"github.com/charlie0129/battlife/pkg/powerinfo"
)

// Event name constants
const (
	// BatteryLive is published after every polling tick.
	BatteryLive = "battery.live"
	// BatteryRecord is published after a full re-acquisition.
	BatteryRecord = "battery.record"
	// BatteryAlert is published once per threshold crossing.
	BatteryAlert = "battery.alert"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// LiveUpdate is the typed payload for battery.live.
type LiveUpdate struct {
	Live   powerinfo.Live       `json:"live"`
	Alerts powerinfo.AlertFlags `json:"alerts"`
	Ts     int64                `json:"ts"`
}

// AlertKind names the condition that raised an alert.
type AlertKind string

const (
	AlertHighTemperature AlertKind = "highTemperature"
	AlertLowBattery      AlertKind = "lowBattery"
)

// Alert is the typed payload for battery.alert.
type Alert struct {
	Kind AlertKind `json:"kind"`
	// Value is the temperature in °C or the charge in percent.
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message"`
	Ts        int64   `json:"ts"`
}

// RecordUpdate is the typed payload for battery.record.
type RecordUpdate struct {
	Record *powerinfo.Record `json:"record"`
	Forced bool              `json:"forced"`
	Ts     int64             `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.Alert](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Kind, payload.Message)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
