package health

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battlife/pkg/normalize"
	"github.com/charlie0129/battlife/pkg/powerinfo"
)

const (
	// PrimaryThreshold is the usual end-of-life health.
	PrimaryThreshold = 80.0
	// CriticalThreshold is the health below which the battery is critical.
	CriticalThreshold = 60.0

	// MaxProjectionDays bounds the simulation to about 15 years.
	MaxProjectionDays = 5475
	// AssumedCyclesPerDay is used to estimate the battery age when the OS
	// install date is unknown.
	AssumedCyclesPerDay = 0.7
	// MinCyclesPerDay is the usage floor below which no projection is made.
	MinCyclesPerDay = 0.01

	lowUsageYears = 10
	cappedYears   = 15
)

// Status of a projection.
type Status string

const (
	StatusInsufficientData Status = "Insufficient Data"
	StatusLowUsage         Status = "Low Usage"
	StatusReplaceNow       Status = "Replace Now"
	StatusCalculated       Status = "Calculated"
	StatusExcellent        Status = "Excellent"
)

// Projection is the remaining time until health crosses a threshold.
type Projection struct {
	Years         int     `json:"years"`
	Months        int     `json:"months"`
	Days          int     `json:"days"`
	Status        Status  `json:"status"`
	Threshold     float64 `json:"threshold"`
	CyclesPerDay  float64 `json:"cyclesPerDay"`
	DaysRemaining int     `json:"daysRemaining"`
}

// InsufficientData reports whether no projection could be made.
func (p Projection) InsufficientData() bool {
	return p.Status == StatusInsufficientData
}

// Projector projects the remaining useful life.
type Projector struct {
	// InstallDate returns when the OS was installed, used as the battery
	// age. May be nil.
	InstallDate func() (time.Time, bool)
	// Now defaults to time.Now.
	Now func() time.Time
}

func (p Projector) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// CyclesPerDay is the historical usage rate: cycles over the OS age, or the
// assumed rate when the OS age is unknown.
func (p Projector) CyclesPerDay(cycles int) float64 {
	ageDays := 0
	if p.InstallDate != nil {
		if installed, ok := p.InstallDate(); ok {
			ageDays = int(p.now().Sub(installed).Hours() / 24)
		}
	}
	if ageDays <= 0 {
		ageDays = 1
		if cycles > 0 {
			ageDays = int(float64(cycles) / AssumedCyclesPerDay)
		}
	}
	if ageDays < 1 {
		ageDays = 1
	}
	return float64(cycles) / float64(ageDays)
}

func fromDays(d int) (years, months, days int) {
	return d / 365, (d % 365) / 30, (d % 365) % 30
}

// Project simulates the wear curve day by day until health drops below
// threshold.
func (p Projector) Project(rec *powerinfo.Record, threshold float64) Projection {
	ret := Projection{Status: StatusInsufficientData, Threshold: threshold}
	if rec == nil || !normalize.ValidCapacity(rec.DesignCapacity, rec.FullChargeCapacity) ||
		rec.CycleCount == nil || *rec.CycleCount < 0 || rec.RatedCycleLife <= 0 {
		return ret
	}

	cycles := *rec.CycleCount
	rated := float64(rec.RatedCycleLife)
	ret.CyclesPerDay = p.CyclesPerDay(cycles)

	if ret.CyclesPerDay < MinCyclesPerDay {
		ret.Status = StatusLowUsage
		ret.Years = lowUsageYears
		ret.DaysRemaining = lowUsageYears * 365
		return ret
	}

	if Score(rec) < threshold {
		ret.Status = StatusReplaceNow
		return ret
	}

	for day := 1; day < MaxProjectionDays; day++ {
		projected := float64(cycles) + float64(day)*ret.CyclesPerDay
		if CycleHealth(projected/rated) < threshold {
			ret.Status = StatusCalculated
			ret.DaysRemaining = day
			ret.Years, ret.Months, ret.Days = fromDays(day)
			logrus.WithFields(logrus.Fields{
				"threshold":    threshold,
				"cyclesPerDay": ret.CyclesPerDay,
				"days":         day,
			}).Debug("remaining life projected")
			return ret
		}
	}

	ret.Status = StatusExcellent
	ret.Years = cappedYears
	ret.DaysRemaining = MaxProjectionDays
	return ret
}
