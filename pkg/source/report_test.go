package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battlife/pkg/powerinfo"
)

const sampleReport = `<?xml version="1.0" encoding="utf-8"?>
<BatteryReport xmlns="http://schemas.microsoft.com/battery/2012">
  <SystemInformation>
    <ComputerName>DESKTOP</ComputerName>
    <SystemManufacturer>Dell Inc.</SystemManufacturer>
  </SystemInformation>
  <Batteries>
    <Battery>
      <Id>DELL M59JH18</Id>
      <Manufacturer>SMP</Manufacturer>
      <SerialNumber>  3142 </SerialNumber>
      <Chemistry>LiP</Chemistry>
      <DesignCapacity>86000</DesignCapacity>
      <FullChargeCapacity>79,120</FullChargeCapacity>
      <CycleCount>145</CycleCount>
    </Battery>
  </Batteries>
</BatteryReport>`

func TestParseReport(t *testing.T) {
	d := parseReport(sampleReport)
	assert.Equal(t, "DELL M59JH18", d.Name)
	assert.Equal(t, "SMP", d.Manufacturer)
	assert.Equal(t, "3142", d.Serial)
	assert.Equal(t, "LiP", d.Chemistry)
	assert.Equal(t, 86000, *d.DesignCapacity)
	assert.Equal(t, 79120, *d.FullChargeCapacity)
	assert.Equal(t, 145, *d.CycleCount)
}

func TestParseReportTolerant(t *testing.T) {
	d := parseReport("<Battery><DesignCapacity>garbage</DesignCapacity><CycleCount>")
	assert.Nil(t, d.DesignCapacity)
	assert.Nil(t, d.CycleCount)
	assert.Empty(t, d.Name)

	assert.Equal(t, reportData{}, parseReport(""))
}

// fakeGenerator writes content to the path given after /output.
func fakeGenerator(content string, calls *int) Runner {
	return func(_ context.Context, _ string, args ...string) ([]byte, error) {
		*calls++
		out := args[len(args)-1]
		return nil, os.WriteFile(out, []byte(content), 0o644)
	}
}

var testReportCommand = []string{"gen", "/output", ReportPathPlaceholder}

func TestReportGeneratesWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery-report.xml")
	calls := 0
	r := NewReport(path, testReportCommand, WithReportRunner(fakeGenerator(sampleReport, &calls)))

	st, ok := r.Static(context.Background()).Get()
	require.True(t, ok)
	assert.Equal(t, 86000, *st.DesignCapacity)

	c, ok := r.CycleCount(context.Background(), CycleHint{}).Get()
	require.True(t, ok)
	assert.Equal(t, 145, c.Count)

	// still fresh, no second run
	assert.Equal(t, 1, calls)
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestReportRegeneratesWhenStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery-report.xml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(sampleReport, "145", "100", 1)), 0o644))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))

	calls := 0
	r := NewReport(path, testReportCommand, WithReportRunner(fakeGenerator(sampleReport, &calls)))
	c, ok := r.CycleCount(context.Background(), CycleHint{}).Get()
	require.True(t, ok)
	assert.Equal(t, 145, c.Count)
	assert.Equal(t, 1, calls)
}

func TestReportGenerationFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "battery-report.xml")
	failing := func(_ context.Context, _ string, args ...string) ([]byte, error) {
		_ = os.WriteFile(args[len(args)-1], []byte("<Battery><Design"), 0o644)
		return nil, errors.New("exit status 1")
	}

	r := NewReport(path, testReportCommand, WithReportRunner(failing))
	res := r.Static(context.Background())
	assert.Equal(t, powerinfo.ExternalToolFailure, res.Kind())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial report must be removed")

	// A stale report is still better than nothing.
	require.NoError(t, os.WriteFile(path, []byte(sampleReport), 0o644))
	old := time.Now().Add(-3 * time.Hour)
	require.NoError(t, os.Chtimes(path, old, old))
	st, ok := r.Static(context.Background()).Get()
	require.True(t, ok)
	assert.Equal(t, "SMP", st.Manufacturer)
}

func TestReportGenerationBackoff(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery-report.xml")
	calls := 0
	failing := func(context.Context, string, ...string) ([]byte, error) {
		calls++
		return nil, errors.New("exit status 1")
	}
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	r := NewReport(path, testReportCommand, WithReportRunner(failing), WithReportClock(func() time.Time { return now }))

	ctx := context.Background()
	assert.Equal(t, powerinfo.ExternalToolFailure, r.Static(ctx).Kind())
	assert.Equal(t, powerinfo.ExternalToolFailure, r.CycleCount(ctx, CycleHint{}).Kind())
	assert.Equal(t, powerinfo.ExternalToolFailure, r.Chemistry(ctx).Kind())
	assert.Equal(t, 1, calls, "one acquisition must run the generator once")

	now = now.Add(ReportRetryBackoff + time.Second)
	assert.Equal(t, powerinfo.ExternalToolFailure, r.Static(ctx).Kind())
	assert.Equal(t, 2, calls)
}

func TestReportWithoutCommand(t *testing.T) {
	r := NewReport(filepath.Join(t.TempDir(), "missing.xml"), nil)
	assert.Equal(t, powerinfo.SourceUnavailable, r.Chemistry(context.Background()).Kind())
}

func TestReportTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery-report.xml")
	hang := func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ErrTimeout
	}
	r := NewReport(path, testReportCommand, WithReportRunner(hang))
	r.timeout = 50 * time.Millisecond

	start := time.Now()
	res := r.CycleCount(context.Background(), CycleHint{})
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, powerinfo.ExternalToolFailure, res.Kind())
}
