// Package types holds the responses shared between the daemon and its
// clients.
package types

import (
	"time"

	"github.com/charlie0129/battlife/pkg/health"
	"github.com/charlie0129/battlife/pkg/powerinfo"
)

// HealthResponse is the state of health of the current record. Score and
// Label are empty when InsufficientData is set: no number is made up from
// missing capacity data.
type HealthResponse struct {
	InsufficientData bool              `json:"insufficientData"`
	Score            float64           `json:"score,omitempty"`
	Label            string            `json:"label,omitempty"`
	Breakdown        *health.Breakdown `json:"breakdown,omitempty"`

	CycleCount           *int `json:"cycleCount,omitempty"`
	CycleCountEstimated  bool `json:"cycleCountEstimated,omitempty"`
	CycleCountOverridden bool `json:"cycleCountOverridden,omitempty"`
	RatedCycleLife       int  `json:"ratedCycleLife"`
}

// NewHealthResponse scores rec.
func NewHealthResponse(rec *powerinfo.Record) HealthResponse {
	ret := HealthResponse{InsufficientData: true}
	if rec == nil {
		return ret
	}

	ret.CycleCount = rec.CycleCount
	ret.CycleCountEstimated = rec.CycleCountEstimated
	ret.CycleCountOverridden = rec.CycleCountOverridden
	ret.RatedCycleLife = rec.RatedCycleLife

	b, ok := health.Indicators(rec)
	if !ok {
		return ret
	}
	ret.InsufficientData = false
	ret.Score = b.Score
	ret.Label = health.Label(b.Score)
	ret.Breakdown = &b
	return ret
}

// LifespanResponse is one remaining useful life projection.
type LifespanResponse struct {
	health.Projection
	InsufficientData bool `json:"insufficientData"`
}

// NewLifespanResponse projects rec against threshold.
func NewLifespanResponse(p health.Projector, rec *powerinfo.Record, threshold float64) LifespanResponse {
	proj := p.Project(rec, threshold)
	return LifespanResponse{Projection: proj, InsufficientData: proj.InsufficientData()}
}

// LiveResponse is the live part of the current record.
type LiveResponse struct {
	Present    bool                 `json:"present"`
	Live       powerinfo.Live       `json:"live"`
	Alerts     powerinfo.AlertFlags `json:"alerts"`
	AcquiredAt time.Time            `json:"acquiredAt"`
}

// NewLiveResponse extracts the live status of rec.
func NewLiveResponse(rec *powerinfo.Record) LiveResponse {
	return LiveResponse{
		Present:    rec.Present,
		Live:       rec.Live,
		Alerts:     rec.Alerts,
		AcquiredAt: rec.AcquiredAt,
	}
}

// StatusResponse describes what the daemon is doing.
type StatusResponse struct {
	Poller    string               `json:"poller"`
	Scheduler bool                 `json:"scheduler"`
	NextRuns  map[string]time.Time `json:"nextRuns"`
}
