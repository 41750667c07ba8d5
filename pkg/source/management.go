package source

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/charlie0129/battlife/pkg/normalize"
	"github.com/charlie0129/battlife/pkg/powerinfo"
)

const (
	// Thermal readings outside (minSaneTemperature, maxSaneTemperature)
	// are sensor garbage.
	minSaneTemperature = -20.0
	maxSaneTemperature = 120.0
)

// Snapshot is what an instrumentation backend returns for one field group.
// Every field is optional; the backend fills what the platform exposes and
// Management validates it.
type Snapshot struct {
	SystemManufacturer string
	SystemModel        string

	Name         string
	Manufacturer string
	Serial       string

	DesignCapacity     *int
	FullChargeCapacity *int
	CycleCount         *int

	Chemistry     string
	ChemistryCode *int

	Percent     *float64
	Charging    *bool
	ACOnline    *bool
	State       powerinfo.BatteryState
	VoltageMV   *int
	PowerW      *float64
	TimeToEmpty *int
	TimeToFull  *int

	// Candidate thermal readings in °C, most relevant first.
	Temperatures []float64
}

// Instrumentation is the platform's management interface: UPower and the
// kernel power supply class on Linux, CIM on Windows.
type Instrumentation interface {
	Name() string
	Query(ctx context.Context, group powerinfo.Field) (*Snapshot, error)
}

// Management adapts an Instrumentation backend to the source interfaces.
type Management struct {
	backend Instrumentation
}

func NewManagement(backend Instrumentation) *Management {
	return &Management{backend: backend}
}

func (m *Management) Name() string {
	return "management/" + m.backend.Name()
}

func (m *Management) query(ctx context.Context, group powerinfo.Field) (*Snapshot, error) {
	s, err := m.backend.Query(ctx, group)
	if err == nil && s == nil {
		s = &Snapshot{}
	}
	return s, err
}

func (m *Management) SystemIdentity(ctx context.Context) Result[SystemIdentity] {
	s, err := m.query(ctx, powerinfo.FieldSystemIdentity)
	if err != nil {
		return Unavailable[SystemIdentity]("%v", err)
	}
	id := SystemIdentity{
		Manufacturer: strings.TrimSpace(s.SystemManufacturer),
		Model:        strings.TrimSpace(s.SystemModel),
	}
	if id.Manufacturer == "" && id.Model == "" {
		return Unavailable[SystemIdentity]("no system identity reported")
	}
	return OK(id)
}

func (m *Management) Static(ctx context.Context) Result[StaticInfo] {
	s, err := m.query(ctx, powerinfo.FieldCapacity)
	if err != nil {
		return Unavailable[StaticInfo]("%v", err)
	}
	info := StaticInfo{
		Name:               strings.TrimSpace(s.Name),
		Manufacturer:       strings.TrimSpace(s.Manufacturer),
		Serial:             strings.TrimSpace(s.Serial),
		DesignCapacity:     positive(s.DesignCapacity),
		FullChargeCapacity: positive(s.FullChargeCapacity),
	}
	if info.Empty() {
		return Unavailable[StaticInfo]("no battery identity or capacity reported")
	}
	return OK(info)
}

// CycleCount reports the hardware cycle counter. Zero is treated as
// unsupported: firmware without a counter reports 0 forever.
func (m *Management) CycleCount(ctx context.Context, _ CycleHint) Result[CycleReading] {
	s, err := m.query(ctx, powerinfo.FieldCycleCount)
	if err != nil {
		return Unavailable[CycleReading]("%v", err)
	}
	if s.CycleCount == nil {
		return Unavailable[CycleReading]("no cycle count reported")
	}
	switch c := *s.CycleCount; {
	case c < 0:
		return Failed[CycleReading](powerinfo.MalformedData, "negative cycle count %d", c)
	case c == 0:
		return Unavailable[CycleReading]("cycle count reported as 0")
	default:
		return OK(CycleReading{Count: c})
	}
}

// Chemistry reports the descriptive chemistry string.
func (m *Management) Chemistry(ctx context.Context) Result[ChemistryReading] {
	s, err := m.query(ctx, powerinfo.FieldChemistry)
	if err != nil {
		return Unavailable[ChemistryReading]("%v", err)
	}
	raw := strings.TrimSpace(s.Chemistry)
	if raw == "" {
		return Unavailable[ChemistryReading]("no chemistry reported")
	}
	return OK(ChemistryReading{Raw: raw})
}

// ByCode is the numeric chemistry code view of the same backend. It ranks
// last in the chemistry chain since the code table is coarse.
func (m *Management) ByCode() ChemistrySource {
	return chemistryCode{m}
}

type chemistryCode struct {
	m *Management
}

func (c chemistryCode) Name() string {
	return c.m.Name() + "/code"
}

func (c chemistryCode) Chemistry(ctx context.Context) Result[ChemistryReading] {
	s, err := c.m.query(ctx, powerinfo.FieldChemistry)
	if err != nil {
		return Unavailable[ChemistryReading]("%v", err)
	}
	if s.ChemistryCode == nil {
		return Unavailable[ChemistryReading]("no chemistry code reported")
	}
	code := *s.ChemistryCode
	if _, ok := normalize.ChemistryFromCode(code); !ok {
		return Failed[ChemistryReading](powerinfo.MalformedData, "unknown chemistry code %d", code)
	}
	return OK(ChemistryReading{Raw: strconv.Itoa(code), Code: &code})
}

func (m *Management) Live(ctx context.Context) Result[powerinfo.Live] {
	s, err := m.query(ctx, powerinfo.FieldLive)
	if err != nil {
		return Unavailable[powerinfo.Live]("%v", err)
	}

	l := powerinfo.NewLive()
	if s.Percent != nil {
		p := normalize.ClampInt(int(math.Round(*s.Percent)), 0, 100)
		l.Percent = &p
	}
	l.Charging = cloneBool(s.Charging)
	l.ACOnline = cloneBool(s.ACOnline)
	l.State = s.State
	if l.Charging == nil && s.State != powerinfo.Unknown {
		charging := s.State == powerinfo.Charging
		l.Charging = &charging
	}
	if s.VoltageMV != nil && *s.VoltageMV > 0 {
		v := *s.VoltageMV
		l.VoltageMV = &v
	}
	if s.PowerW != nil {
		w := *s.PowerW
		l.PowerW = &w
	}
	if s.TimeToEmpty != nil && *s.TimeToEmpty >= 0 {
		l.TimeToEmpty = *s.TimeToEmpty
	}
	if s.TimeToFull != nil && *s.TimeToFull >= 0 {
		l.TimeToFull = *s.TimeToFull
	}

	empty := powerinfo.NewLive()
	if !empty.FillFrom(l) {
		return Unavailable[powerinfo.Live]("no live status reported")
	}
	return OK(l)
}

// Temperature returns the first thermal reading within the sanity range,
// rounded to 0.1 °C.
func (m *Management) Temperature(ctx context.Context) Result[float64] {
	s, err := m.query(ctx, powerinfo.FieldTemperature)
	if err != nil {
		return Unavailable[float64]("%v", err)
	}
	if len(s.Temperatures) == 0 {
		return Unavailable[float64]("no thermal zone reported")
	}
	for _, t := range s.Temperatures {
		if t > minSaneTemperature && t < maxSaneTemperature {
			return OK(math.Round(t*10) / 10)
		}
	}
	return Failed[float64](powerinfo.MalformedData, "thermal readings %v outside sanity range", s.Temperatures)
}

func positive(p *int) *int {
	if p == nil || *p <= 0 {
		return nil
	}
	v := *p
	return &v
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
