package powerinfo

import (
	"encoding/json"
	"fmt"
	"time"
)

// BatteryState represents the charging state of the battery.
type BatteryState int

const (
	// Unknown indicates no source could tell the state.
	Unknown BatteryState = iota
	// Discharging indicates the battery is discharging.
	Discharging
	// Charging indicates the battery is charging.
	Charging
	// Full indicates the battery is full.
	Full
)

func (s BatteryState) String() string {
	switch s {
	case Discharging:
		return "discharging"
	case Charging:
		return "charging"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

func (s BatteryState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *BatteryState) UnmarshalJSON(b []byte) error {
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return err
	}
	switch str {
	case "discharging":
		*s = Discharging
	case "charging":
		*s = Charging
	case "full":
		*s = Full
	case "unknown", "":
		*s = Unknown
	default:
		return fmt.Errorf("unknown battery state %q", str)
	}
	return nil
}

// TimeUnknown is the sentinel for TimeToEmpty and TimeToFull when no source
// could estimate the remaining time.
const TimeUnknown = -1

// Live holds the fast-changing part of a Record. It is replaced wholesale on
// every polling tick.
//
// Units:
// - TimeToEmpty, TimeToFull: seconds, or TimeUnknown
// - VoltageMV: millivolts
// - PowerW: watts, positive while charging
// - TemperatureC: degrees Celsius
type Live struct {
	Percent      *int         `json:"percent,omitempty"`
	Charging     *bool        `json:"charging,omitempty"`
	ACOnline     *bool        `json:"acOnline,omitempty"`
	TimeToEmpty  int          `json:"timeToEmpty"`
	TimeToFull   int          `json:"timeToFull"`
	VoltageMV    *int         `json:"voltageMV,omitempty"`
	PowerW       *float64     `json:"powerW,omitempty"`
	TemperatureC *float64     `json:"temperatureC,omitempty"`
	State        BatteryState `json:"state"`
}

// NewLive returns an empty Live with both time estimates unknown. Sources
// must start from it instead of a zero Live, where 0 would mean "no time left".
func NewLive() Live {
	return Live{TimeToEmpty: TimeUnknown, TimeToFull: TimeUnknown}
}

// FillFrom copies every field of o that is missing in l. Fields already set
// in l are never overwritten. It reports whether anything was copied.
func (l *Live) FillFrom(o Live) bool {
	filled := false
	if l.Percent == nil && o.Percent != nil {
		v := *o.Percent
		l.Percent = &v
		filled = true
	}
	if l.Charging == nil && o.Charging != nil {
		v := *o.Charging
		l.Charging = &v
		filled = true
	}
	if l.ACOnline == nil && o.ACOnline != nil {
		v := *o.ACOnline
		l.ACOnline = &v
		filled = true
	}
	if l.TimeToEmpty == TimeUnknown && o.TimeToEmpty != TimeUnknown {
		l.TimeToEmpty = o.TimeToEmpty
		filled = true
	}
	if l.TimeToFull == TimeUnknown && o.TimeToFull != TimeUnknown {
		l.TimeToFull = o.TimeToFull
		filled = true
	}
	if l.VoltageMV == nil && o.VoltageMV != nil {
		v := *o.VoltageMV
		l.VoltageMV = &v
		filled = true
	}
	if l.PowerW == nil && o.PowerW != nil {
		v := *o.PowerW
		l.PowerW = &v
		filled = true
	}
	if l.TemperatureC == nil && o.TemperatureC != nil {
		v := *o.TemperatureC
		l.TemperatureC = &v
		filled = true
	}
	if l.State == Unknown && o.State != Unknown {
		l.State = o.State
		filled = true
	}
	return filled
}

// Complete reports whether every live field except temperature is known.
// Temperature has its own source and never blocks the live chain.
func (l Live) Complete() bool {
	return l.Percent != nil && l.Charging != nil && l.ACOnline != nil &&
		l.TimeToEmpty != TimeUnknown && l.TimeToFull != TimeUnknown &&
		l.VoltageMV != nil && l.PowerW != nil && l.State != Unknown
}

// Clone returns a deep copy of l.
func (l Live) Clone() Live {
	c := NewLive()
	c.FillFrom(l)
	return c
}

// Field names a telemetry field group.
type Field string

const (
	FieldPresence       Field = "presence"
	FieldSystemIdentity Field = "systemIdentity"
	FieldIdentity       Field = "identity"
	FieldCapacity       Field = "capacity"
	FieldCycleCount     Field = "cycleCount"
	FieldChemistry      Field = "chemistry"
	FieldLive           Field = "live"
	FieldTemperature    Field = "temperature"
	FieldCache          Field = "cache"
)

// FailureKind classifies why a field could not be filled by a source.
type FailureKind string

const (
	// SourceUnavailable means the source could not answer. Expected, drives fallback.
	SourceUnavailable FailureKind = "SourceUnavailable"
	// MalformedData means the source answered with implausible values.
	MalformedData FailureKind = "MalformedData"
	// ExternalToolFailure means a helper process failed or timed out.
	ExternalToolFailure FailureKind = "ExternalToolFailure"
	// CacheCorruption means the cache file could not be read.
	CacheCorruption FailureKind = "CacheCorruption"
	// NoSourceSucceeded means every source for a field failed.
	NoSourceSucceeded FailureKind = "NoSourceSucceeded"
)

// Failure records one source failing to provide one field.
type Failure struct {
	Field  Field       `json:"field"`
	Source string      `json:"source"`
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

func (f Failure) String() string {
	return fmt.Sprintf("%s/%s: %s (%s)", f.Field, f.Source, f.Reason, f.Kind)
}

// AlertFlags tracks which alerts were already raised for the condition that
// is currently active. A flag goes back to false once its condition clears.
type AlertFlags struct {
	HighTemperature bool `json:"highTemperature"`
	LowBattery      bool `json:"lowBattery"`
}

// Record is the consolidated battery snapshot. A Record is never mutated
// after it has been published; use Clone or WithLive to derive a new one.
//
// Capacities are in mWh.
type Record struct {
	SystemManufacturer string `json:"systemManufacturer,omitempty"`
	SystemModel        string `json:"systemModel,omitempty"`

	Present bool `json:"present"`

	Name          string `json:"name,omitempty"`
	Manufacturer  string `json:"manufacturer,omitempty"`
	Serial        string `json:"serial,omitempty"`
	Chemistry     string `json:"chemistry,omitempty"`
	ChemistryRaw  string `json:"chemistryRaw,omitempty"`
	ChemistryCode *int   `json:"chemistryCode,omitempty"`

	DesignCapacity     *int `json:"designCapacity,omitempty"`
	FullChargeCapacity *int `json:"fullChargeCapacity,omitempty"`

	CycleCount           *int `json:"cycleCount,omitempty"`
	CycleCountEstimated  bool `json:"cycleCountEstimated,omitempty"`
	CycleCountOverridden bool `json:"cycleCountOverridden,omitempty"`
	RatedCycleLife       int  `json:"ratedCycleLife"`

	Live Live `json:"live"`

	AcquiredAt      time.Time  `json:"acquiredAt"`
	Failures        []Failure  `json:"failures,omitempty"`
	Alerts          AlertFlags `json:"alerts"`
	StaticFromCache bool       `json:"staticFromCache,omitempty"`
}

// AddFailure appends a failure to the record.
func (r *Record) AddFailure(field Field, source string, kind FailureKind, reason string) {
	r.Failures = append(r.Failures, Failure{Field: field, Source: source, Kind: kind, Reason: reason})
}

// FailuresFor returns the failures recorded for one field.
func (r *Record) FailuresFor(field Field) []Failure {
	var ret []Failure
	for _, f := range r.Failures {
		if f.Field == field {
			ret = append(ret, f)
		}
	}
	return ret
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.ChemistryCode = cloneInt(r.ChemistryCode)
	c.DesignCapacity = cloneInt(r.DesignCapacity)
	c.FullChargeCapacity = cloneInt(r.FullChargeCapacity)
	c.CycleCount = cloneInt(r.CycleCount)
	c.Live = r.Live.Clone()
	if r.Failures != nil {
		c.Failures = make([]Failure, len(r.Failures))
		copy(c.Failures, r.Failures)
	}
	return &c
}

// WithLive returns a copy of r whose live status is replaced by l.
func (r *Record) WithLive(l Live, at time.Time) *Record {
	c := r.Clone()
	c.Live = l.Clone()
	c.AcquiredAt = at
	return c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// ChargeLogEntry is one sample of the historical charge log.
type ChargeLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Percent   int       `json:"percent"`
	Charging  bool      `json:"charging"`
	// CycleContribution is the fraction of a full cycle consumed since the
	// previous sample, 0 while charging.
	CycleContribution float64 `json:"cycleContribution"`
}
