package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battlife/pkg/powerinfo"
	"github.com/charlie0129/battlife/pkg/utils/ptr"
)

type fakeBackend struct {
	snap *Snapshot
	err  error
}

func (f fakeBackend) Name() string { return "fake" }

func (f fakeBackend) Query(context.Context, powerinfo.Field) (*Snapshot, error) {
	return f.snap, f.err
}

func TestManagementBackendError(t *testing.T) {
	m := NewManagement(fakeBackend{err: errors.New("no bus")})
	ctx := context.Background()

	assert.Equal(t, powerinfo.SourceUnavailable, m.Static(ctx).Kind())
	assert.Equal(t, powerinfo.SourceUnavailable, m.CycleCount(ctx, CycleHint{}).Kind())
	assert.Equal(t, powerinfo.SourceUnavailable, m.Live(ctx).Kind())
	assert.Equal(t, powerinfo.SourceUnavailable, m.Temperature(ctx).Kind())
	assert.Equal(t, "management/fake", m.Name())
}

func TestManagementCycleCount(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		count *int
		want  int
		kind  powerinfo.FailureKind
	}{
		{"missing", nil, 0, powerinfo.SourceUnavailable},
		{"negative", ptr.To(-3), 0, powerinfo.MalformedData},
		{"zero", ptr.To(0), 0, powerinfo.SourceUnavailable},
		{"valid", ptr.To(150), 150, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewManagement(fakeBackend{snap: &Snapshot{CycleCount: tt.count}}).CycleCount(ctx, CycleHint{})
			assert.Equal(t, tt.kind, r.Kind())
			if v, ok := r.Get(); ok {
				assert.Equal(t, tt.want, v.Count)
				assert.False(t, v.Estimated)
			}
		})
	}
}

func TestManagementTemperature(t *testing.T) {
	ctx := context.Background()

	r := NewManagement(fakeBackend{snap: &Snapshot{Temperatures: []float64{150, 41.26}}}).Temperature(ctx)
	v, ok := r.Get()
	require.True(t, ok)
	assert.Equal(t, 41.3, v)

	r = NewManagement(fakeBackend{snap: &Snapshot{Temperatures: []float64{-40, 200}}}).Temperature(ctx)
	assert.Equal(t, powerinfo.MalformedData, r.Kind())

	r = NewManagement(fakeBackend{snap: &Snapshot{}}).Temperature(ctx)
	assert.Equal(t, powerinfo.SourceUnavailable, r.Kind())
}

func TestManagementLive(t *testing.T) {
	m := NewManagement(fakeBackend{snap: &Snapshot{
		Percent: ptr.To(104.2),
		State:   powerinfo.Charging,
		PowerW:  ptr.To(12.5),
	}})
	l, ok := m.Live(context.Background()).Get()
	require.True(t, ok)
	assert.Equal(t, 100, *l.Percent)
	assert.True(t, *l.Charging)
	assert.Nil(t, l.ACOnline)
	assert.Equal(t, powerinfo.TimeUnknown, l.TimeToEmpty)

	empty := NewManagement(fakeBackend{snap: &Snapshot{}})
	assert.False(t, empty.Live(context.Background()).Available())
}

func TestManagementStaticAndChemistry(t *testing.T) {
	ctx := context.Background()
	m := NewManagement(fakeBackend{snap: &Snapshot{
		Manufacturer:       " LGC ",
		DesignCapacity:     ptr.To(0),
		FullChargeCapacity: ptr.To(48000),
		Chemistry:          "LION",
		ChemistryCode:      ptr.To(6),
	}})

	st, ok := m.Static(ctx).Get()
	require.True(t, ok)
	assert.Equal(t, "LGC", st.Manufacturer)
	assert.Nil(t, st.DesignCapacity)
	assert.Equal(t, 48000, *st.FullChargeCapacity)

	c, ok := m.Chemistry(ctx).Get()
	require.True(t, ok)
	assert.Equal(t, "LION", c.Raw)

	c, ok = m.ByCode().Chemistry(ctx).Get()
	require.True(t, ok)
	assert.Equal(t, 6, *c.Code)

	bad := NewManagement(fakeBackend{snap: &Snapshot{ChemistryCode: ptr.To(42)}})
	assert.Equal(t, powerinfo.MalformedData, bad.ByCode().Chemistry(ctx).Kind())
	assert.False(t, bad.Static(ctx).Available())
}
