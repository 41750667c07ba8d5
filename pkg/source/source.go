// Package source contains the telemetry sources. Every source answers a
// narrow question (identity, capacity, cycles, chemistry, live status,
// temperature) and reports failure as a value, never as a panic or error
// escaping its method.
package source

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battlife/pkg/powerinfo"
)

// Result is either a value or the reason it is unavailable.
type Result[T any] struct {
	value  T
	ok     bool
	kind   powerinfo.FailureKind
	reason string
}

// OK wraps a value.
func OK[T any](v T) Result[T] {
	return Result[T]{value: v, ok: true}
}

// Unavailable reports that the source cannot answer.
func Unavailable[T any](format string, a ...any) Result[T] {
	return Result[T]{kind: powerinfo.SourceUnavailable, reason: fmt.Sprintf(format, a...)}
}

// Failed reports a failure of a specific kind.
func Failed[T any](kind powerinfo.FailureKind, format string, a ...any) Result[T] {
	return Result[T]{kind: kind, reason: fmt.Sprintf(format, a...)}
}

// Get returns the value and whether it is available.
func (r Result[T]) Get() (T, bool) {
	return r.value, r.ok
}

// Available reports whether the result holds a value.
func (r Result[T]) Available() bool {
	return r.ok
}

// Kind is the failure kind. Empty for available results.
func (r Result[T]) Kind() powerinfo.FailureKind {
	return r.kind
}

// Reason explains why the result is unavailable.
func (r Result[T]) Reason() string {
	return r.reason
}

func (r Result[T]) String() string {
	if r.ok {
		return fmt.Sprintf("ok(%v)", r.value)
	}
	return fmt.Sprintf("unavailable(%s: %s)", r.kind, r.reason)
}

// SystemIdentity identifies the host machine.
type SystemIdentity struct {
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
}

// StaticInfo is the battery identity and capacity. Every field is optional.
// Capacities are in mWh.
type StaticInfo struct {
	Name               string `json:"name,omitempty"`
	Manufacturer       string `json:"manufacturer,omitempty"`
	Serial             string `json:"serial,omitempty"`
	DesignCapacity     *int   `json:"designCapacity,omitempty"`
	FullChargeCapacity *int   `json:"fullChargeCapacity,omitempty"`
}

// Empty reports whether no field is set.
func (s StaticInfo) Empty() bool {
	return s.Name == "" && s.Manufacturer == "" && s.Serial == "" &&
		s.DesignCapacity == nil && s.FullChargeCapacity == nil
}

// ChemistryReading is a chemistry as reported by a source, before
// normalization.
type ChemistryReading struct {
	Raw  string
	Code *int
}

// CycleReading is a cycle count and whether it was estimated rather than
// read from the hardware.
type CycleReading struct {
	Count     int
	Estimated bool
}

// CycleHint carries what the orchestrator already knows when it asks for
// the cycle count. Only estimating sources use it.
type CycleHint struct {
	DesignCapacity     *int
	FullChargeCapacity *int
	RatedCycleLife     int
}

// Source is implemented by every source.
type Source interface {
	Name() string
}

type PresenceDetector interface {
	Source
	Present(ctx context.Context) Result[bool]
}

type IdentitySource interface {
	Source
	SystemIdentity(ctx context.Context) Result[SystemIdentity]
}

type StaticSource interface {
	Source
	Static(ctx context.Context) Result[StaticInfo]
}

type CycleSource interface {
	Source
	CycleCount(ctx context.Context, hint CycleHint) Result[CycleReading]
}

type ChemistrySource interface {
	Source
	Chemistry(ctx context.Context) Result[ChemistryReading]
}

type LiveSource interface {
	Source
	Live(ctx context.Context) Result[powerinfo.Live]
}

type TemperatureSource interface {
	Source
	Temperature(ctx context.Context) Result[float64]
}

// Call runs fn and converts a panic into an unavailable result, so a bug in
// one source cannot take down an acquisition.
func Call[T any](src Source, fn func() Result[T]) (r Result[T]) {
	defer func() {
		if p := recover(); p != nil {
			logrus.WithFields(logrus.Fields{
				"source": src.Name(),
				"panic":  p,
			}).Error("source panicked")
			r = Failed[T](powerinfo.MalformedData, "source panicked: %v", p)
		}
	}()
	return fn()
}
