// Package orchestrator merges the telemetry sources into one record.
//
// Every field group has a chain of sources in fixed priority order. A
// field is filled by the first source that answers; later sources only
// fill fields that are still missing, they never overwrite.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battlife/pkg/cache"
	"github.com/charlie0129/battlife/pkg/normalize"
	"github.com/charlie0129/battlife/pkg/powerinfo"
	"github.com/charlie0129/battlife/pkg/source"
)

const sourceName = "orchestrator"

// Cache is the static field cache.
type Cache interface {
	Lookup() (*cache.Entry, error)
	Save(cache.Entry) error
}

// Request tunes one acquisition.
type Request struct {
	// CycleCountOverride replaces the cycle count from every source.
	CycleCountOverride *int
	// ForceRefresh skips the cache and rewrites it from the sources.
	ForceRefresh bool
}

// Orchestrator runs acquisitions. Acquisitions are serialized; it is safe
// to call from several goroutines.
type Orchestrator struct {
	sources  source.Chains
	cache    Cache
	profiles *normalize.ProfileTable
	now      func() time.Time

	mu sync.Mutex
}

type Option func(*Orchestrator)

func WithProfiles(p *normalize.ProfileTable) Option {
	return func(o *Orchestrator) {
		o.profiles = p
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// New creates an orchestrator. c may be nil to disable caching.
func New(sources source.Chains, c Cache, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sources:  sources,
		cache:    c,
		profiles: normalize.DefaultProfiles(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// acquisition is the state of one Acquire call.
type acquisition struct {
	ctx context.Context
	rec *powerinfo.Record

	// capacities holds every capacity pair seen, in priority order.
	capacities []capacityReading
}

type capacityReading struct {
	src          source.Source
	design, full *int
}

type capacityReject struct {
	src    source.Source
	reason string
}

func (a *acquisition) fail(field powerinfo.Field, src source.Source, kind powerinfo.FailureKind, reason string) {
	a.rec.AddFailure(field, src.Name(), kind, reason)
	logrus.WithFields(logrus.Fields{
		"field":  field,
		"source": src.Name(),
		"kind":   kind,
		"reason": reason,
	}).Debug("source did not provide field")
}

// check records a failure for an unavailable result and reports whether it
// holds a value.
func check[T any](a *acquisition, field powerinfo.Field, src source.Source, r source.Result[T]) (T, bool) {
	v, ok := r.Get()
	if !ok {
		a.fail(field, src, r.Kind(), r.Reason())
	}
	return v, ok
}

// Acquire produces a complete record. It never fails: whatever cannot be
// determined stays empty and is listed in Failures.
func (o *Orchestrator) Acquire(ctx context.Context, req Request) *powerinfo.Record {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := o.now()
	a := &acquisition{
		ctx: ctx,
		rec: &powerinfo.Record{Live: powerinfo.NewLive()},
	}

	present, known := o.presence(a)
	o.identity(a)
	if known && !present {
		a.rec.AcquiredAt = o.now()
		logrus.Debug("no battery present")
		return a.rec
	}

	fromCache := false
	if !req.ForceRefresh {
		fromCache = o.fromCache(a)
	}
	o.static(a)
	o.chemistry(a)
	o.ratedCycleLife(a)
	o.cycles(a, req.CycleCountOverride)
	a.rec.Live = o.live(a)
	o.temperature(a)

	if !known {
		a.rec.Present = hasBatteryData(a.rec)
	}
	o.missing(a)

	if !fromCache {
		o.writeCache(a.rec)
	}

	a.rec.AcquiredAt = o.now()
	logrus.WithFields(logrus.Fields{
		"present":   a.rec.Present,
		"fromCache": a.rec.StaticFromCache,
		"failures":  len(a.rec.Failures),
		"elapsed":   a.rec.AcquiredAt.Sub(start).String(),
	}).Debug("acquisition finished")
	return a.rec
}

// AcquireLive reads only the live status and the temperature.
func (o *Orchestrator) AcquireLive(ctx context.Context) (powerinfo.Live, []powerinfo.Failure) {
	o.mu.Lock()
	defer o.mu.Unlock()

	a := &acquisition{
		ctx: ctx,
		rec: &powerinfo.Record{Live: powerinfo.NewLive()},
	}
	a.rec.Live = o.live(a)
	o.temperature(a)
	return a.rec.Live, a.rec.Failures
}

// presence returns whether a battery is installed and whether any detector
// could tell.
func (o *Orchestrator) presence(a *acquisition) (present, known bool) {
	for _, d := range o.sources.Presence {
		r := source.Call(d, func() source.Result[bool] { return d.Present(a.ctx) })
		if v, ok := check(a, powerinfo.FieldPresence, d, r); ok {
			a.rec.Present = v
			return v, true
		}
	}
	return false, false
}

func (o *Orchestrator) identity(a *acquisition) {
	for _, s := range o.sources.Identity {
		if a.rec.SystemManufacturer != "" && a.rec.SystemModel != "" {
			return
		}
		r := source.Call(s, func() source.Result[source.SystemIdentity] { return s.SystemIdentity(a.ctx) })
		id, ok := check(a, powerinfo.FieldSystemIdentity, s, r)
		if !ok {
			continue
		}
		fillString(&a.rec.SystemManufacturer, id.Manufacturer)
		fillString(&a.rec.SystemModel, id.Model)
	}
}

type cacheSource struct{}

func (cacheSource) Name() string { return "cache" }

func (o *Orchestrator) fromCache(a *acquisition) bool {
	if o.cache == nil {
		return false
	}
	e, err := o.cache.Lookup()
	if err != nil {
		if errors.Is(err, cache.ErrCorrupt) {
			a.fail(powerinfo.FieldCache, cacheSource{}, powerinfo.CacheCorruption, err.Error())
		}
		return false
	}

	r := a.rec
	fillString(&r.Name, e.Name)
	fillString(&r.Manufacturer, e.Manufacturer)
	fillString(&r.Serial, e.Serial)
	o.fillCapacity(a, cacheSource{}, e.DesignCapacity, e.FullChargeCapacity)
	if e.Chemistry != "" {
		r.Chemistry = normalize.Chemistry(e.Chemistry)
		r.ChemistryRaw = e.Chemistry
	}
	// An estimate must not shadow the sources ranked above the estimator.
	if e.CycleCount != nil && *e.CycleCount >= 0 && !e.CycleEstimated {
		c := *e.CycleCount
		r.CycleCount = &c
	}
	r.RatedCycleLife = e.RatedCycleLife
	r.StaticFromCache = true
	return true
}

func staticComplete(r *powerinfo.Record) bool {
	return r.Name != "" && r.Manufacturer != "" && r.Serial != "" &&
		r.DesignCapacity != nil && r.FullChargeCapacity != nil
}

func (o *Orchestrator) static(a *acquisition) {
	defer o.settleCapacity(a)
	for _, s := range o.sources.Static {
		if staticComplete(a.rec) {
			return
		}
		r := source.Call(s, func() source.Result[source.StaticInfo] { return s.Static(a.ctx) })
		info, ok := check(a, powerinfo.FieldCapacity, s, r)
		if !ok {
			continue
		}
		fillString(&a.rec.Name, info.Name)
		fillString(&a.rec.Manufacturer, info.Manufacturer)
		fillString(&a.rec.Serial, info.Serial)
		o.fillCapacity(a, s, info.DesignCapacity, info.FullChargeCapacity)
	}
}

// fillCapacity adds a source's capacities to the candidates and updates the
// record with the best plausible pair so far.
func (o *Orchestrator) fillCapacity(a *acquisition, src source.Source, design, full *int) {
	if design == nil && full == nil {
		return
	}
	a.capacities = append(a.capacities, capacityReading{src: src, design: design, full: full})
	a.rec.DesignCapacity, a.rec.FullChargeCapacity, _ = resolveCapacity(a.capacities)
}

// settleCapacity fixes the final pair and reports the dropped values.
func (o *Orchestrator) settleCapacity(a *acquisition) {
	var rejects []capacityReject
	a.rec.DesignCapacity, a.rec.FullChargeCapacity, rejects = resolveCapacity(a.capacities)
	for _, rj := range rejects {
		a.fail(powerinfo.FieldCapacity, rj.src, powerinfo.MalformedData, rj.reason)
	}
}

// resolveCapacity takes the first plausible design capacity, then the first
// full-charge capacity that is plausible against it. Implausible values are
// dropped, never clamped, so a lower-priority source can still fill the
// field.
func resolveCapacity(readings []capacityReading) (design, full *int, rejects []capacityReject) {
	for _, rd := range readings {
		if design != nil {
			break
		}
		if rd.design == nil {
			continue
		}
		d, _, reasons := normalize.Capacities(rd.design, nil)
		design = d
		for _, reason := range reasons {
			rejects = append(rejects, capacityReject{src: rd.src, reason: reason})
		}
	}
	for _, rd := range readings {
		if full != nil {
			break
		}
		if rd.full == nil {
			continue
		}
		_, f, reasons := normalize.Capacities(design, rd.full)
		full = f
		for _, reason := range reasons {
			rejects = append(rejects, capacityReject{src: rd.src, reason: reason})
		}
	}
	return design, full, rejects
}

func (o *Orchestrator) chemistry(a *acquisition) {
	if a.rec.Chemistry != "" && a.rec.Chemistry != normalize.ChemUnknown {
		return
	}
	for _, s := range o.sources.Chemistry {
		r := source.Call(s, func() source.Result[source.ChemistryReading] { return s.Chemistry(a.ctx) })
		c, ok := check(a, powerinfo.FieldChemistry, s, r)
		if !ok {
			continue
		}

		// Numeric codes in Raw go through the code table.
		name := normalize.Chemistry(c.Raw)
		if name == normalize.ChemUnknown {
			a.fail(powerinfo.FieldChemistry, s, powerinfo.MalformedData, "unrecognized chemistry "+c.Raw)
			continue
		}
		a.rec.Chemistry = name
		a.rec.ChemistryRaw = c.Raw
		if c.Code != nil {
			code := *c.Code
			a.rec.ChemistryCode = &code
		}
		return
	}
}

// ratedCycleLife prefers the system manufacturer and model, which match
// the profile table better than battery cell vendors do.
func (o *Orchestrator) ratedCycleLife(a *acquisition) {
	r := a.rec
	if r.RatedCycleLife > 0 {
		return
	}
	manufacturer := firstNonEmpty(r.SystemManufacturer, r.Manufacturer)
	model := firstNonEmpty(r.SystemModel, r.Name)
	r.RatedCycleLife = o.profiles.RatedCycles(manufacturer, model, r.Chemistry)
}

func (o *Orchestrator) cycles(a *acquisition, override *int) {
	r := a.rec
	if override != nil {
		c := *override
		r.CycleCount = &c
		r.CycleCountEstimated = false
		r.CycleCountOverridden = true
		return
	}
	if r.CycleCount != nil {
		return
	}

	hint := source.CycleHint{
		DesignCapacity:     r.DesignCapacity,
		FullChargeCapacity: r.FullChargeCapacity,
		RatedCycleLife:     r.RatedCycleLife,
	}
	for _, s := range o.sources.Cycles {
		res := source.Call(s, func() source.Result[source.CycleReading] { return s.CycleCount(a.ctx, hint) })
		c, ok := check(a, powerinfo.FieldCycleCount, s, res)
		if !ok {
			continue
		}
		n := c.Count
		r.CycleCount = &n
		r.CycleCountEstimated = c.Estimated
		return
	}
}

func (o *Orchestrator) live(a *acquisition) powerinfo.Live {
	l := powerinfo.NewLive()
	for _, s := range o.sources.Live {
		if l.Complete() {
			break
		}
		r := source.Call(s, func() source.Result[powerinfo.Live] { return s.Live(a.ctx) })
		if v, ok := check(a, powerinfo.FieldLive, s, r); ok {
			l.FillFrom(v)
		}
	}
	return l
}

func (o *Orchestrator) temperature(a *acquisition) {
	for _, s := range o.sources.Temperature {
		r := source.Call(s, func() source.Result[float64] { return s.Temperature(a.ctx) })
		if t, ok := check(a, powerinfo.FieldTemperature, s, r); ok {
			a.rec.Live.TemperatureC = &t
			return
		}
	}
}

type orchestratorSource struct{}

func (orchestratorSource) Name() string { return sourceName }

// missing records NoSourceSucceeded for every field group left empty.
func (o *Orchestrator) missing(a *acquisition) {
	r := a.rec
	groups := []struct {
		field powerinfo.Field
		empty bool
	}{
		{powerinfo.FieldSystemIdentity, r.SystemManufacturer == "" && r.SystemModel == ""},
		{powerinfo.FieldIdentity, r.Name == "" && r.Manufacturer == "" && r.Serial == ""},
		{powerinfo.FieldCapacity, r.DesignCapacity == nil || r.FullChargeCapacity == nil},
		{powerinfo.FieldChemistry, r.Chemistry == ""},
		{powerinfo.FieldCycleCount, r.CycleCount == nil},
		{powerinfo.FieldLive, r.Live.Percent == nil},
		{powerinfo.FieldTemperature, r.Live.TemperatureC == nil},
	}
	for _, g := range groups {
		if g.empty {
			a.fail(g.field, orchestratorSource{}, powerinfo.NoSourceSucceeded, "no source provided "+string(g.field))
		}
	}
	if r.Chemistry == "" {
		r.Chemistry = normalize.ChemUnknown
	}
}

func (o *Orchestrator) writeCache(r *powerinfo.Record) {
	if o.cache == nil || !r.Present {
		return
	}
	if r.DesignCapacity == nil && r.FullChargeCapacity == nil && r.Manufacturer == "" && r.Serial == "" {
		return
	}
	e := cache.Entry{
		Manufacturer:       r.Manufacturer,
		Serial:             r.Serial,
		Name:               r.Name,
		DesignCapacity:     r.DesignCapacity,
		FullChargeCapacity: r.FullChargeCapacity,
		RatedCycleLife:     r.RatedCycleLife,
	}
	if r.Chemistry != normalize.ChemUnknown {
		e.Chemistry = r.Chemistry
	}
	// An override is a user setting, not a reading.
	if !r.CycleCountOverridden {
		e.CycleCount = r.CycleCount
		e.CycleEstimated = r.CycleCountEstimated
	}
	if err := o.cache.Save(e); err != nil {
		logrus.WithError(err).Warn("failed to write static cache")
	}
}

func hasBatteryData(r *powerinfo.Record) bool {
	return r.DesignCapacity != nil || r.FullChargeCapacity != nil ||
		r.Live.Percent != nil || r.Serial != ""
}

func fillString(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}
