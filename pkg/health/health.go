// Package health turns a battery record into a state-of-health score and a
// remaining useful life projection.
package health

import (
	"math"

	"github.com/charlie0129/battlife/pkg/normalize"
	"github.com/charlie0129/battlife/pkg/powerinfo"
)

const (
	// maxWearRatio caps cycles/rated in the score. Old batteries may go past
	// their rating but the curve is not trusted beyond 1.5x.
	maxWearRatio = 1.5

	youngWearRatio = 0.1
	oldWearRatio   = 0.8
)

// Breakdown holds the indicators a score was computed from.
type Breakdown struct {
	CapacityHealth float64 `json:"capacityHealth"`
	CycleHealth    float64 `json:"cycleHealth"`
	WearRatio      float64 `json:"wearRatio"`
	CapacityWeight float64 `json:"capacityWeight"`
	CycleWeight    float64 `json:"cycleWeight"`
	// CyclesKnown is false when no source had a cycle count and 0 was
	// assumed.
	CyclesKnown bool    `json:"cyclesKnown"`
	Score       float64 `json:"score"`
}

// CycleHealth is the non-linear wear curve: 100 * (1 - 0.2 * ratio^1.5).
// It is not clamped; the projector relies on it going below any threshold.
func CycleHealth(wearRatio float64) float64 {
	if wearRatio < 0 {
		wearRatio = 0
	}
	return 100 * (1 - 0.2*math.Pow(wearRatio, 1.5))
}

// regime is a wear ratio range with its blend weights. Weights shift toward
// the capacity reading as the battery ages.
type regime struct {
	end      float64
	capacity float64
	cycle    float64
}

var regimes = []regime{
	{youngWearRatio, 0.4, 0.6},
	{oldWearRatio, 0.7, 0.3},
	{maxWearRatio, 0.8, 0.2},
}

func regimeFor(wearRatio float64) int {
	switch {
	case wearRatio < youngWearRatio:
		return 0
	case wearRatio > oldWearRatio:
		return 2
	default:
		return 1
	}
}

func (g regime) blend(capacityHealth, wearRatio float64) float64 {
	return g.capacity*capacityHealth + g.cycle*CycleHealth(wearRatio)
}

func ratedLife(rec *powerinfo.Record) int {
	if rec.RatedCycleLife > 0 {
		return rec.RatedCycleLife
	}
	return normalize.DefaultRatedCycles
}

// Indicators computes the score and its inputs. The score is the
// capacity/cycle blend of the regime the wear ratio falls in, capped by the
// blend of every younger regime at its upper boundary. ok is false when the
// capacity data is absent or implausible; the score is then 0.
func Indicators(rec *powerinfo.Record) (Breakdown, bool) {
	if rec == nil || !normalize.ValidCapacity(rec.DesignCapacity, rec.FullChargeCapacity) {
		return Breakdown{}, false
	}

	b := Breakdown{
		CapacityHealth: 100 * float64(*rec.FullChargeCapacity) / float64(*rec.DesignCapacity),
	}

	cycles := 0
	if rec.CycleCount != nil && *rec.CycleCount >= 0 {
		cycles = *rec.CycleCount
		b.CyclesKnown = true
	}
	b.WearRatio = math.Min(float64(cycles)/float64(ratedLife(rec)), maxWearRatio)
	b.CycleHealth = CycleHealth(b.WearRatio)

	idx := regimeFor(b.WearRatio)
	b.CapacityWeight, b.CycleWeight = regimes[idx].capacity, regimes[idx].cycle
	score := regimes[idx].blend(b.CapacityHealth, b.WearRatio)

	// Entering an older regime moves weight to the capacity reading, which
	// lifts the blend when capacity reads above the cycle curve. The younger
	// regimes at their boundary bound the score so more cycles never raise it.
	for _, g := range regimes[:idx] {
		score = math.Min(score, g.blend(b.CapacityHealth, g.end))
	}

	b.Score = normalize.Clamp(score, 0, 100)
	return b, true
}

// Score returns the state of health in [0, 100], or 0 when it cannot be
// computed. It is the regime blend capped at the regime boundaries, see
// Indicators. Use Indicators to tell the two cases apart.
func Score(rec *powerinfo.Record) float64 {
	b, _ := Indicators(rec)
	return b.Score
}

type band struct {
	min   float64
	label string
}

var bands = []band{
	{95, "Excellent"},
	{85, "Very Good"},
	{75, "Good"},
	{60, "Fair"},
	{40, "Moderate"},
	{0, "Poor"},
}

// Label describes a score in words.
func Label(score float64) string {
	// bands are integral, so 94.6 is still "Very Good"
	s := math.Floor(score)
	for _, b := range bands {
		if s >= b.min {
			return b.label
		}
	}
	return bands[len(bands)-1].label
}
