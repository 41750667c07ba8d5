package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battlife/pkg/cache"
	"github.com/charlie0129/battlife/pkg/normalize"
	"github.com/charlie0129/battlife/pkg/powerinfo"
	"github.com/charlie0129/battlife/pkg/source"
	"github.com/charlie0129/battlife/pkg/utils/ptr"
)

// fake implements every source interface. Unset results are unavailable.
type fake struct {
	name     string
	present  *bool
	identity *source.SystemIdentity
	static   *source.StaticInfo
	cycles   *source.CycleReading
	chem     *source.ChemistryReading
	live     *powerinfo.Live
	temp     *float64
	panics   bool

	calls    int
	lastHint source.CycleHint
}

func (f *fake) Name() string { return f.name }

func result[T any](f *fake, v *T) source.Result[T] {
	f.calls++
	if f.panics {
		panic("boom")
	}
	if v == nil {
		return source.Unavailable[T]("%s has nothing", f.name)
	}
	return source.OK(*v)
}

func (f *fake) Present(context.Context) source.Result[bool] { return result(f, f.present) }
func (f *fake) SystemIdentity(context.Context) source.Result[source.SystemIdentity] {
	return result(f, f.identity)
}
func (f *fake) Static(context.Context) source.Result[source.StaticInfo] { return result(f, f.static) }
func (f *fake) CycleCount(_ context.Context, h source.CycleHint) source.Result[source.CycleReading] {
	f.lastHint = h
	return result(f, f.cycles)
}
func (f *fake) Chemistry(context.Context) source.Result[source.ChemistryReading] {
	return result(f, f.chem)
}
func (f *fake) Live(context.Context) source.Result[powerinfo.Live] { return result(f, f.live) }
func (f *fake) Temperature(context.Context) source.Result[float64] { return result(f, f.temp) }

func liveWith(percent int, charging bool) *powerinfo.Live {
	l := powerinfo.NewLive()
	l.Percent = ptr.To(percent)
	l.Charging = ptr.To(charging)
	return &l
}

var testNow = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T) *cache.File {
	return cache.NewFile(filepath.Join(t.TempDir(), "cache.json"), cache.WithClock(func() time.Time { return testNow }))
}

func TestNoBattery(t *testing.T) {
	native := &fake{name: "native", present: ptr.To(false)}
	dmi := &fake{name: "dmi", identity: &source.SystemIdentity{Manufacturer: "Dell Inc.", Model: "OptiPlex 7090"}}
	static := &fake{name: "static", static: &source.StaticInfo{Serial: "x"}}

	o := New(source.Chains{
		Presence: []source.PresenceDetector{native},
		Identity: []source.IdentitySource{dmi},
		Static:   []source.StaticSource{static},
	}, nil)
	rec := o.Acquire(context.Background(), Request{})

	assert.False(t, rec.Present)
	assert.Equal(t, "Dell Inc.", rec.SystemManufacturer)
	assert.Equal(t, "OptiPlex 7090", rec.SystemModel)
	assert.Equal(t, 1, dmi.calls)
	assert.Zero(t, static.calls, "no battery source may run without a battery")
	assert.Empty(t, rec.Serial)
}

func TestPresenceFallsBack(t *testing.T) {
	native := &fake{name: "native"}
	sensor := &fake{name: "sensor", present: ptr.To(true)}

	rec := New(source.Chains{Presence: []source.PresenceDetector{native, sensor}}, nil).
		Acquire(context.Background(), Request{})
	assert.True(t, rec.Present)
	require.Len(t, rec.FailuresFor(powerinfo.FieldPresence), 1)
	assert.Equal(t, "native", rec.FailuresFor(powerinfo.FieldPresence)[0].Source)
}

func TestPresenceUnknownUsesData(t *testing.T) {
	live := &fake{name: "live", live: liveWith(40, false)}
	rec := New(source.Chains{Live: []source.LiveSource{live}}, nil).Acquire(context.Background(), Request{})
	assert.True(t, rec.Present)

	rec = New(source.Chains{}, nil).Acquire(context.Background(), Request{})
	assert.False(t, rec.Present)
	assert.Equal(t, normalize.ChemUnknown, rec.Chemistry)
	assert.NotEmpty(t, rec.FailuresFor(powerinfo.FieldLive))
}

func TestPriorityNoOverwrite(t *testing.T) {
	report := &fake{name: "report", static: &source.StaticInfo{
		Manufacturer:   "SMP",
		DesignCapacity: ptr.To(86000),
	}}
	mgmt := &fake{name: "mgmt", static: &source.StaticInfo{
		Manufacturer:       "Other",
		Serial:             "3142",
		Name:               "DELL M59JH18",
		DesignCapacity:     ptr.To(50000),
		FullChargeCapacity: ptr.To(79000),
	}}

	rec := New(source.Chains{Static: []source.StaticSource{report, mgmt}}, nil).
		Acquire(context.Background(), Request{})

	assert.Equal(t, "SMP", rec.Manufacturer)
	assert.Equal(t, "3142", rec.Serial)
	assert.Equal(t, "DELL M59JH18", rec.Name)
	assert.Equal(t, 86000, *rec.DesignCapacity)
	assert.Equal(t, 79000, *rec.FullChargeCapacity)
}

func TestStaticChainStopsWhenComplete(t *testing.T) {
	report := &fake{name: "report", static: &source.StaticInfo{
		Name: "a", Manufacturer: "b", Serial: "c",
		DesignCapacity: ptr.To(50000), FullChargeCapacity: ptr.To(45000),
	}}
	mgmt := &fake{name: "mgmt"}
	New(source.Chains{Static: []source.StaticSource{report, mgmt}}, nil).Acquire(context.Background(), Request{})
	assert.Zero(t, mgmt.calls)
}

func TestImplausibleCapacityDropped(t *testing.T) {
	report := &fake{name: "report", static: &source.StaticInfo{
		DesignCapacity:     ptr.To(500),
		FullChargeCapacity: ptr.To(40000),
	}}
	mgmt := &fake{name: "mgmt", static: &source.StaticInfo{
		DesignCapacity: ptr.To(50000),
	}}

	rec := New(source.Chains{Static: []source.StaticSource{report, mgmt}}, nil).
		Acquire(context.Background(), Request{})

	assert.Equal(t, 50000, *rec.DesignCapacity)
	assert.Equal(t, 40000, *rec.FullChargeCapacity)

	var malformed int
	for _, f := range rec.FailuresFor(powerinfo.FieldCapacity) {
		if f.Kind == powerinfo.MalformedData {
			malformed++
			assert.Equal(t, "report", f.Source)
		}
	}
	assert.Equal(t, 1, malformed)
}

func TestFullChargeAboveRatioDropped(t *testing.T) {
	mgmt := &fake{name: "mgmt", static: &source.StaticInfo{
		DesignCapacity:     ptr.To(40000),
		FullChargeCapacity: ptr.To(90000),
	}}
	rec := New(source.Chains{Static: []source.StaticSource{mgmt}}, nil).Acquire(context.Background(), Request{})
	assert.Equal(t, 40000, *rec.DesignCapacity)
	assert.Nil(t, rec.FullChargeCapacity)
}

func TestFullChargePairedWithFinalDesign(t *testing.T) {
	report := &fake{name: "report", static: &source.StaticInfo{
		DesignCapacity:     ptr.To(500),
		FullChargeCapacity: ptr.To(90000),
	}}
	mgmt := &fake{name: "mgmt", static: &source.StaticInfo{
		DesignCapacity:     ptr.To(50000),
		FullChargeCapacity: ptr.To(45000),
	}}

	rec := New(source.Chains{Static: []source.StaticSource{report, mgmt}}, nil).
		Acquire(context.Background(), Request{})

	require.NotNil(t, rec.DesignCapacity)
	require.NotNil(t, rec.FullChargeCapacity)
	assert.Equal(t, 50000, *rec.DesignCapacity)
	assert.Equal(t, 45000, *rec.FullChargeCapacity)
	assert.True(t, normalize.ValidCapacity(rec.DesignCapacity, rec.FullChargeCapacity))

	failures := rec.FailuresFor(powerinfo.FieldCapacity)
	require.Len(t, failures, 2)
	for _, f := range failures {
		assert.Equal(t, "report", f.Source)
		assert.Equal(t, powerinfo.MalformedData, f.Kind)
	}
}

func TestCycleOverride(t *testing.T) {
	mgmt := &fake{name: "mgmt", cycles: &source.CycleReading{Count: 100}}
	rec := New(source.Chains{Cycles: []source.CycleSource{mgmt}}, nil).
		Acquire(context.Background(), Request{CycleCountOverride: ptr.To(250)})

	assert.Equal(t, 250, *rec.CycleCount)
	assert.True(t, rec.CycleCountOverridden)
	assert.False(t, rec.CycleCountEstimated)
	assert.Zero(t, mgmt.calls)
}

func TestCycleChainAndHint(t *testing.T) {
	mgmt := &fake{name: "mgmt"}
	est := &fake{name: "estimate", cycles: &source.CycleReading{Count: 321, Estimated: true}}
	static := &fake{name: "static", static: &source.StaticInfo{
		DesignCapacity:     ptr.To(60000),
		FullChargeCapacity: ptr.To(54000),
	}}
	ident := &fake{name: "dmi", identity: &source.SystemIdentity{Manufacturer: "LENOVO", Model: "ThinkPad X1"}}

	rec := New(source.Chains{
		Identity: []source.IdentitySource{ident},
		Static:   []source.StaticSource{static},
		Cycles:   []source.CycleSource{mgmt, est},
	}, nil).Acquire(context.Background(), Request{})

	assert.Equal(t, 321, *rec.CycleCount)
	assert.True(t, rec.CycleCountEstimated)
	assert.Equal(t, 1200, rec.RatedCycleLife)
	assert.Equal(t, 1200, est.lastHint.RatedCycleLife)
	assert.Equal(t, 60000, *est.lastHint.DesignCapacity)
}

func TestChemistryChain(t *testing.T) {
	mgmt := &fake{name: "mgmt", chem: &source.ChemistryReading{Raw: "Unknown"}}
	report := &fake{name: "report", chem: &source.ChemistryReading{Raw: "LiP"}}
	code := &fake{name: "code", chem: &source.ChemistryReading{Raw: "6", Code: ptr.To(6)}}

	rec := New(source.Chains{Chemistry: []source.ChemistrySource{mgmt, report, code}}, nil).
		Acquire(context.Background(), Request{})
	assert.Equal(t, normalize.Chemistry("LiP"), rec.Chemistry)
	assert.Equal(t, "LiP", rec.ChemistryRaw)
	assert.Zero(t, code.calls)

	rec = New(source.Chains{Chemistry: []source.ChemistrySource{code}}, nil).
		Acquire(context.Background(), Request{})
	assert.Equal(t, normalize.ChemLiIon, rec.Chemistry)
	assert.Equal(t, 6, *rec.ChemistryCode)
}

func TestLiveMerge(t *testing.T) {
	native := powerinfo.NewLive()
	native.Percent = ptr.To(55)
	native.ACOnline = ptr.To(false)

	sensor := powerinfo.NewLive()
	sensor.Percent = ptr.To(99)
	sensor.VoltageMV = ptr.To(11800)
	sensor.TimeToEmpty = 3600
	sensor.State = powerinfo.Discharging

	o := New(source.Chains{
		Live:        []source.LiveSource{&fake{name: "native", live: &native}, &fake{name: "sensor", live: &sensor}},
		Temperature: []source.TemperatureSource{&fake{name: "thermal", temp: ptr.To(36.6)}},
	}, nil)

	l, failures := o.AcquireLive(context.Background())
	assert.Empty(t, failures)
	assert.Equal(t, 55, *l.Percent)
	assert.Equal(t, 11800, *l.VoltageMV)
	assert.Equal(t, 3600, l.TimeToEmpty)
	assert.Equal(t, powerinfo.TimeUnknown, l.TimeToFull)
	assert.Equal(t, powerinfo.Discharging, l.State)
	assert.Equal(t, 36.6, *l.TemperatureC)
}

func TestLiveChainStopsWhenComplete(t *testing.T) {
	full := powerinfo.NewLive()
	full.Percent = ptr.To(80)
	full.Charging = ptr.To(true)
	full.ACOnline = ptr.To(true)
	full.TimeToEmpty = 0
	full.TimeToFull = 600
	full.VoltageMV = ptr.To(12000)
	full.PowerW = ptr.To(20.0)
	full.State = powerinfo.Charging

	second := &fake{name: "second", live: liveWith(10, false)}
	l, _ := New(source.Chains{Live: []source.LiveSource{&fake{name: "first", live: &full}, second}}, nil).
		AcquireLive(context.Background())
	assert.Equal(t, 80, *l.Percent)
	assert.Zero(t, second.calls)
}

func TestPanickingSourceIsSkipped(t *testing.T) {
	bad := &fake{name: "bad", panics: true}
	good := &fake{name: "good", static: &source.StaticInfo{Serial: "42"}}

	rec := New(source.Chains{Static: []source.StaticSource{bad, good}}, nil).
		Acquire(context.Background(), Request{})
	assert.Equal(t, "42", rec.Serial)
	fails := rec.FailuresFor(powerinfo.FieldCapacity)
	require.NotEmpty(t, fails)
	assert.Equal(t, "bad", fails[0].Source)
	assert.Equal(t, powerinfo.MalformedData, fails[0].Kind)
}

func TestCacheWriteThroughAndReuse(t *testing.T) {
	c := newTestCache(t)
	static := &fake{name: "mgmt", static: &source.StaticInfo{
		Manufacturer:       "SMP",
		Serial:             "3142",
		DesignCapacity:     ptr.To(86000),
		FullChargeCapacity: ptr.To(79000),
	}}
	cycles := &fake{name: "mgmt", cycles: &source.CycleReading{Count: 145}}
	chains := source.Chains{
		Presence: []source.PresenceDetector{&fake{name: "native", present: ptr.To(true)}},
		Static:   []source.StaticSource{static},
		Cycles:   []source.CycleSource{cycles},
	}
	o := New(chains, c, WithClock(func() time.Time { return testNow }))

	rec := o.Acquire(context.Background(), Request{})
	assert.False(t, rec.StaticFromCache)
	assert.Equal(t, testNow, rec.AcquiredAt)

	e, ok := c.Load()
	require.True(t, ok)
	assert.Equal(t, "3142", e.Serial)
	assert.Equal(t, 145, *e.CycleCount)

	rec = o.Acquire(context.Background(), Request{})
	assert.True(t, rec.StaticFromCache)
	assert.Equal(t, 86000, *rec.DesignCapacity)
	assert.Equal(t, 145, *rec.CycleCount)
	assert.Equal(t, 1, cycles.calls, "cycle count must come from the cache")

	rec = o.Acquire(context.Background(), Request{ForceRefresh: true})
	assert.False(t, rec.StaticFromCache)
	assert.Equal(t, 2, cycles.calls)
}

func TestEstimatedCyclesNotReusedFromCache(t *testing.T) {
	c := newTestCache(t)
	static := &fake{name: "mgmt", static: &source.StaticInfo{
		Serial:             "3142",
		DesignCapacity:     ptr.To(50000),
		FullChargeCapacity: ptr.To(45000),
	}}
	mgmt := &fake{name: "mgmt"}
	est := &fake{name: "estimate", cycles: &source.CycleReading{Count: 250, Estimated: true}}
	o := New(source.Chains{
		Presence: []source.PresenceDetector{&fake{name: "native", present: ptr.To(true)}},
		Static:   []source.StaticSource{static},
		Cycles:   []source.CycleSource{mgmt, est},
	}, c, WithClock(func() time.Time { return testNow }))

	rec := o.Acquire(context.Background(), Request{})
	require.NotNil(t, rec.CycleCount)
	assert.Equal(t, 250, *rec.CycleCount)
	assert.True(t, rec.CycleCountEstimated)

	mgmt.cycles = &source.CycleReading{Count: 612}
	rec = o.Acquire(context.Background(), Request{})
	assert.True(t, rec.StaticFromCache)
	require.NotNil(t, rec.CycleCount)
	assert.Equal(t, 612, *rec.CycleCount)
	assert.False(t, rec.CycleCountEstimated)
}

func TestOverrideNotCached(t *testing.T) {
	c := newTestCache(t)
	o := New(source.Chains{
		Static: []source.StaticSource{&fake{name: "s", static: &source.StaticInfo{Serial: "1", DesignCapacity: ptr.To(50000)}}},
	}, c)
	o.Acquire(context.Background(), Request{CycleCountOverride: ptr.To(9)})

	e, ok := c.Load()
	require.True(t, ok)
	assert.Nil(t, e.CycleCount)
}

type corruptCache struct{}

func (corruptCache) Lookup() (*cache.Entry, error) { return nil, cache.ErrCorrupt }
func (corruptCache) Save(cache.Entry) error { return errors.New("read-only") }

func TestCorruptCacheReported(t *testing.T) {
	o := New(source.Chains{
		Static: []source.StaticSource{&fake{name: "s", static: &source.StaticInfo{Serial: "1"}}},
	}, corruptCache{})
	rec := o.Acquire(context.Background(), Request{})
	require.Len(t, rec.FailuresFor(powerinfo.FieldCache), 1)
	assert.Equal(t, powerinfo.CacheCorruption, rec.FailuresFor(powerinfo.FieldCache)[0].Kind)
	assert.Equal(t, "1", rec.Serial)
}
