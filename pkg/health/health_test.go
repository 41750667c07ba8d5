package health

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battlife/pkg/powerinfo"
	"github.com/charlie0129/battlife/pkg/utils/ptr"
)

func record(design, full int, cycles *int, rated int) *powerinfo.Record {
	return &powerinfo.Record{
		DesignCapacity:     ptr.To(design),
		FullChargeCapacity: ptr.To(full),
		CycleCount:         cycles,
		RatedCycleLife:     rated,
	}
}

func TestScoreExample(t *testing.T) {
	b, ok := Indicators(record(50000, 45000, ptr.To(200), 1000))
	require.True(t, ok)
	assert.InDelta(t, 90, b.CapacityHealth, 1e-9)
	assert.InDelta(t, 0.2, b.WearRatio, 1e-9)
	assert.Equal(t, 0.7, b.CapacityWeight)
	assert.Equal(t, 0.3, b.CycleWeight)
	assert.InDelta(t, 98.21, b.CycleHealth, 0.01)
	assert.InDelta(t, 92.46, b.Score, 0.01)
	assert.True(t, b.CyclesKnown)
}

func TestScoreWeights(t *testing.T) {
	tests := []struct {
		cycles             int
		capacity, cycleWgt float64
	}{
		{50, 0.4, 0.6},
		{100, 0.7, 0.3},
		{800, 0.7, 0.3},
		{801, 0.8, 0.2},
		{5000, 0.8, 0.2},
	}
	for _, tt := range tests {
		b, ok := Indicators(record(50000, 45000, ptr.To(tt.cycles), 1000))
		require.True(t, ok)
		assert.Equal(t, tt.capacity, b.CapacityWeight, "cycles=%d", tt.cycles)
		assert.Equal(t, tt.cycleWgt, b.CycleWeight, "cycles=%d", tt.cycles)
	}
}

func TestScoreCannotCompute(t *testing.T) {
	rec := &powerinfo.Record{DesignCapacity: ptr.To(50000)}
	_, ok := Indicators(rec)
	assert.False(t, ok)
	assert.Zero(t, Score(rec))

	assert.Zero(t, Score(record(800, 700, nil, 1000)))
	assert.Zero(t, Score(record(50000, 80000, nil, 1000)))
	assert.Zero(t, Score(nil))
}

func TestScoreMissingCycles(t *testing.T) {
	b, ok := Indicators(record(50000, 45000, nil, 0))
	require.True(t, ok)
	assert.False(t, b.CyclesKnown)
	assert.Zero(t, b.WearRatio)
	assert.InDelta(t, 0.4*90+0.6*100, b.Score, 1e-9)
}

func TestScoreRange(t *testing.T) {
	for design := 1001; design <= 100001; design += 9973 {
		for full := 1; full <= design*3/2; full += design / 7 {
			for _, cycles := range []int{0, 1, 99, 500, 1000, 1500, 10000} {
				s := Score(record(design, full, ptr.To(cycles), 800))
				assert.GreaterOrEqual(t, s, 0.0)
				assert.LessOrEqual(t, s, 100.0)
			}
		}
	}
}

func TestScoreMonotonic(t *testing.T) {
	for _, full := range []int{20000, 45000, 50000, 70000} {
		prev := 101.0
		for cycles := 0; cycles <= 3000; cycles += 7 {
			s := Score(record(50000, full, ptr.To(cycles), 1000))
			assert.LessOrEqual(t, s, prev+1e-9, "full=%d cycles=%d", full, cycles)
			prev = s
		}
	}

	for _, cycles := range []int{0, 90, 200, 850, 2000} {
		prev := -1.0
		for full := 1000; full <= 75000; full += 500 {
			s := Score(record(50000, full, ptr.To(cycles), 1000))
			assert.GreaterOrEqual(t, s, prev-1e-9, "full=%d cycles=%d", full, cycles)
			prev = s
		}
	}
}

func TestScoreRegimeBoundary(t *testing.T) {
	// Capacity above the cycle curve: the jump into the mid-life weights
	// must not raise the score.
	young, _ := Indicators(record(50000, 50000, ptr.To(99), 1000))
	mid, _ := Indicators(record(50000, 50000, ptr.To(100), 1000))
	assert.LessOrEqual(t, mid.Score, young.Score)
	assert.Equal(t, 0.7, mid.CapacityWeight)

	// Capacity below the cycle curve: the plain blend applies.
	b, _ := Indicators(record(50000, 40000, ptr.To(900), 1000))
	assert.InDelta(t, 0.8*80+0.2*CycleHealth(0.9), b.Score, 1e-9)
}

func TestLabel(t *testing.T) {
	tests := map[float64]string{
		100:  "Excellent",
		95:   "Excellent",
		94.6: "Very Good",
		85:   "Very Good",
		80:   "Good",
		60:   "Fair",
		59.9: "Moderate",
		40:   "Moderate",
		39:   "Poor",
		0:    "Poor",
		-5:   "Poor",
	}
	for score, want := range tests {
		assert.Equal(t, want, Label(score), "score=%v", score)
	}
}
