package source

import (
	"context"

	"github.com/charlie0129/battlife/pkg/normalize"
)

// wearPerCycleLife is the capacity loss over the rated cycle life, as the
// reciprocal: a battery is rated to keep 80% after its rated cycles.
const wearPerCycleLife = 5

// ChargeLogReader is the part of the charge log the estimator needs.
type ChargeLogReader interface {
	TotalContribution(ctx context.Context) (float64, int, error)
}

// Estimator derives a cycle count when no hardware counter is available.
// Its readings are always flagged as estimated.
type Estimator struct {
	log ChargeLogReader
}

// NewEstimator creates an estimator. log may be nil.
func NewEstimator(log ChargeLogReader) *Estimator {
	return &Estimator{log: log}
}

func (e *Estimator) Name() string {
	return "estimate"
}

func (e *Estimator) CycleCount(ctx context.Context, hint CycleHint) Result[CycleReading] {
	if n, ok := EstimateCycles(hint.DesignCapacity, hint.FullChargeCapacity, hint.RatedCycleLife); ok {
		return OK(CycleReading{Count: n, Estimated: true})
	}

	if e.log == nil {
		return Unavailable[CycleReading]("no valid capacity and no charge log")
	}
	total, samples, err := e.log.TotalContribution(ctx)
	if err != nil {
		return Unavailable[CycleReading]("failed to read charge log: %v", err)
	}
	if samples == 0 {
		return Unavailable[CycleReading]("charge log is empty")
	}
	return OK(CycleReading{Count: int(total), Estimated: true})
}

// EstimateCycles estimates the cycle count from capacity degradation,
// assuming wear is linear in cycles.
func EstimateCycles(design, full *int, rated int) (int, bool) {
	if !normalize.ValidCapacity(design, full) || rated <= 0 {
		return 0, false
	}
	lost := *design - *full
	if lost <= 0 {
		return 0, true
	}
	// (lost/design) / 0.2 * rated, in integers to keep the truncation exact
	return lost * wearPerCycleLife * rated / *design, true
}
