// Package console prints a battery report as plain text.
package console

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/charlie0129/battlife/pkg/health"
	"github.com/charlie0129/battlife/pkg/powerinfo"
	"github.com/charlie0129/battlife/pkg/types"
)

// Report is everything the dump shows.
type Report struct {
	Record   *powerinfo.Record
	Health   types.HealthResponse
	Primary  types.LifespanResponse
	Critical types.LifespanResponse
}

// NewReport scores rec and projects it against both thresholds.
func NewReport(p health.Projector, rec *powerinfo.Record, primary, critical float64) Report {
	return Report{
		Record:   rec,
		Health:   types.NewHealthResponse(rec),
		Primary:  types.NewLifespanResponse(p, rec, primary),
		Critical: types.NewLifespanResponse(p, rec, critical),
	}
}

func bold(format string, a ...any) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

const unknown = "unknown"

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

func mWh(v *int) string {
	if v == nil {
		return unknown
	}
	return fmt.Sprintf("%d mWh", *v)
}

func duration(seconds int) string {
	if seconds == powerinfo.TimeUnknown {
		return unknown
	}
	return (time.Duration(seconds) * time.Second).String()
}

func yesNo(b *bool) string {
	switch {
	case b == nil:
		return unknown
	case *b:
		return "yes"
	default:
		return "no"
	}
}

// Print writes r to w. Colors follow color.NoColor.
func Print(w io.Writer, r Report) {
	rec := r.Record
	p := func(format string, a ...any) {
		_, _ = fmt.Fprintf(w, format, a...)
	}

	p("%s\n", bold("System:"))
	p("  Manufacturer: %s\n", orUnknown(rec.SystemManufacturer))
	p("  Model: %s\n", orUnknown(rec.SystemModel))
	p("\n")

	if !rec.Present {
		p("%s\n", color.YellowString("No battery detected."))
		printFailures(w, rec.Failures)
		return
	}

	p("%s\n", bold("Battery:"))
	p("  Name: %s\n", orUnknown(rec.Name))
	p("  Manufacturer: %s\n", orUnknown(rec.Manufacturer))
	if rec.Serial != "" {
		p("  Serial: %s\n", rec.Serial)
	}
	chem := orUnknown(rec.Chemistry)
	if rec.ChemistryRaw != "" && rec.ChemistryRaw != rec.Chemistry {
		chem += fmt.Sprintf(" (%s)", rec.ChemistryRaw)
	}
	p("  Chemistry: %s\n", chem)
	p("  Design capacity: %s\n", bold("%s", mWh(rec.DesignCapacity)))
	p("  Full charge capacity: %s\n", bold("%s", mWh(rec.FullChargeCapacity)))
	if rec.StaticFromCache {
		p("  %s\n", color.New(color.Faint).Sprint("(static details from cache)"))
	}
	p("\n")

	p("%s\n", bold("Health:"))
	if r.Health.InsufficientData {
		p("  State of health: %s\n", color.YellowString("insufficient data"))
	} else {
		p("  State of health: %s (%s)\n", scoreColor(r.Health.Score).Sprintf("%.1f%%", r.Health.Score), r.Health.Label)
	}
	p("  Cycle count: %s\n", cycles(rec))
	p("  Rated cycle life: %d\n", rec.RatedCycleLife)
	PrintLifespan(w, r.Primary)
	PrintLifespan(w, r.Critical)
	p("\n")

	p("%s\n", bold("Live:"))
	l := rec.Live
	if l.Percent != nil {
		p("  Charge: %s\n", bold("%d%%", *l.Percent))
	} else {
		p("  Charge: %s\n", unknown)
	}
	p("  State: %s\n", stateText(l))
	p("  On AC power: %s\n", yesNo(l.ACOnline))
	p("  Time to empty: %s\n", duration(l.TimeToEmpty))
	p("  Time to full: %s\n", duration(l.TimeToFull))
	if l.PowerW != nil {
		p("  Power: %s\n", powerText(*l.PowerW))
	}
	if l.VoltageMV != nil {
		p("  Voltage: %s\n", bold("%.2f V", float64(*l.VoltageMV)/1000))
	}
	if l.TemperatureC != nil {
		t := bold("%.1f °C", *l.TemperatureC)
		if rec.Alerts.HighTemperature {
			t = color.New(color.Bold, color.FgRed).Sprintf("%.1f °C", *l.TemperatureC)
		}
		p("  Temperature: %s\n", t)
	}
	if rec.Alerts.LowBattery {
		p("  %s\n", color.New(color.Bold, color.FgRed).Sprint("Battery low"))
	}
	if !rec.AcquiredAt.IsZero() {
		p("  Acquired at: %s\n", rec.AcquiredAt.Local().Format(time.RFC3339))
	}

	printFailures(w, rec.Failures)
}

func cycles(rec *powerinfo.Record) string {
	if rec.CycleCount == nil {
		return unknown
	}
	s := bold("%d", *rec.CycleCount)
	switch {
	case rec.CycleCountOverridden:
		s += " (set manually)"
	case rec.CycleCountEstimated:
		s += " (estimated)"
	}
	return s
}

func scoreColor(score float64) *color.Color {
	switch {
	case score >= health.PrimaryThreshold:
		return color.New(color.Bold, color.FgGreen)
	case score >= health.CriticalThreshold:
		return color.New(color.Bold, color.FgYellow)
	default:
		return color.New(color.Bold, color.FgRed)
	}
}

// PrintLifespan writes one lifespan line.
func PrintLifespan(w io.Writer, l types.LifespanResponse) {
	label := fmt.Sprintf("  Lifespan to %.0f%%: ", l.Threshold)
	var value string
	switch l.Status {
	case health.StatusCalculated, health.StatusExcellent:
		value = bold("%s", lifespanText(l.Years, l.Months, l.Days))
		if l.Status == health.StatusExcellent {
			value += " or more"
		}
	case health.StatusLowUsage:
		value = bold("%s", lifespanText(l.Years, l.Months, l.Days)) + " (low usage)"
	case health.StatusReplaceNow:
		value = color.New(color.Bold, color.FgRed).Sprint("replace now")
	default:
		value = color.YellowString("insufficient data")
	}
	_, _ = fmt.Fprintf(w, "%s%s\n", label, value)
}

func lifespanText(years, months, days int) string {
	var parts []string
	plural := func(n int, unit string) {
		if n == 0 {
			return
		}
		if n == 1 {
			parts = append(parts, fmt.Sprintf("1 %s", unit))
			return
		}
		parts = append(parts, fmt.Sprintf("%d %ss", n, unit))
	}
	plural(years, "year")
	plural(months, "month")
	plural(days, "day")
	if len(parts) == 0 {
		return "less than a day"
	}
	return strings.Join(parts, " ")
}

func stateText(l powerinfo.Live) string {
	switch l.State {
	case powerinfo.Charging:
		return color.GreenString("charging")
	case powerinfo.Discharging:
		return color.RedString("discharging")
	case powerinfo.Full:
		return "full"
	}
	if l.Charging != nil && !*l.Charging {
		return "not charging"
	}
	return unknown
}

func powerText(w float64) string {
	switch {
	case w > 0:
		return color.New(color.Bold, color.FgGreen).Sprintf("%+.1f W", w)
	case w < 0:
		return color.New(color.Bold, color.FgRed).Sprintf("%+.1f W", w)
	default:
		return bold("%+.1f W", w)
	}
}

func printFailures(w io.Writer, failures []powerinfo.Failure) {
	if len(failures) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "\n%s\n", bold("Unavailable data:"))
	for _, f := range failures {
		_, _ = fmt.Fprintf(w, "  %s from %s: %s", f.Field, f.Source, f.Kind)
		if f.Reason != "" {
			_, _ = fmt.Fprintf(w, " (%s)", f.Reason)
		}
		_, _ = fmt.Fprintln(w)
	}
}
