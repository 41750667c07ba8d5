package daemon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battlife/pkg/config"
	"github.com/charlie0129/battlife/pkg/events"
	"github.com/charlie0129/battlife/pkg/health"
	"github.com/charlie0129/battlife/pkg/orchestrator"
	"github.com/charlie0129/battlife/pkg/powerinfo"
	"github.com/charlie0129/battlife/pkg/types"
	"github.com/charlie0129/battlife/pkg/utils/ptr"
	"github.com/charlie0129/battlife/pkg/version"
)

type testServer struct {
	*server
	acq    *fakeAcquirer
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	conf := config.NewFileFromConfig(&config.RawFileConfig{
		PollIntervalSeconds: ptr.To(1),
	}, filepath.Join(t.TempDir(), "battlife.json"))

	acq := newFakeAcquirer()
	hub := events.NewEventHub()
	s := &server{
		conf: conf,
		projector: health.Projector{
			InstallDate: func() (time.Time, bool) { return now.AddDate(0, 0, -350), true },
			Now:         func() time.Time { return now },
		},
		hub:       hub,
		scheduler: NewScheduler(nil),
	}
	s.poller = NewPoller(acq, conf, WithPublisher(hub))

	return &testServer{server: s, acq: acq, router: setupRoutes(s)}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHandlersNotReady(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/record", "/health", "/lifespan", "/live"} {
		w := ts.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestGetHealth(t *testing.T) {
	ts := newTestServer(t)
	ts.poller.Publish(ts.acq.Acquire(t.Context(), orchestrator.Request{}))

	w := ts.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	h := decode[types.HealthResponse](t, w)
	assert.False(t, h.InsufficientData)
	assert.NotEmpty(t, h.Label)
	assert.Equal(t, 1000, h.RatedCycleLife)
	require.NotNil(t, h.CycleCount)
	assert.Equal(t, 200, *h.CycleCount)
}

func TestGetLifespan(t *testing.T) {
	ts := newTestServer(t)
	ts.poller.Publish(ts.acq.Acquire(t.Context(), orchestrator.Request{}))

	w := ts.do(t, http.MethodGet, "/lifespan", "")
	require.Equal(t, http.StatusOK, w.Code)
	primary := decode[types.LifespanResponse](t, w)
	assert.Equal(t, 80.0, primary.Threshold)
	assert.False(t, primary.InsufficientData)

	w = ts.do(t, http.MethodGet, "/lifespan?threshold=60", "")
	require.Equal(t, http.StatusOK, w.Code)
	critical := decode[types.LifespanResponse](t, w)
	assert.Equal(t, 60.0, critical.Threshold)
	assert.GreaterOrEqual(t, critical.DaysRemaining, primary.DaysRemaining)

	for _, q := range []string{"abc", "0", "101"} {
		w = ts.do(t, http.MethodGet, "/lifespan?threshold="+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestGetLive(t *testing.T) {
	ts := newTestServer(t)
	ts.poller.Publish(ts.acq.Acquire(t.Context(), orchestrator.Request{}))

	w := ts.do(t, http.MethodGet, "/live", "")
	require.Equal(t, http.StatusOK, w.Code)
	l := decode[types.LiveResponse](t, w)
	assert.True(t, l.Present)
	require.NotNil(t, l.Live.Percent)
	assert.Equal(t, 80, *l.Live.Percent)
}

func TestPostRefresh(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/refresh?force=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	rec := decode[powerinfo.Record](t, w)
	assert.True(t, rec.Present)
	assert.True(t, ts.acq.request().ForceRefresh)
	assert.NotNil(t, ts.poller.Current())

	w = ts.do(t, http.MethodPost, "/refresh?force=maybe", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCycleCountOverride(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/cycle-count", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null", w.Body.String())

	w = ts.do(t, http.MethodPut, "/cycle-count", "250")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.NotNil(t, ts.conf.CycleCountOverride())
	assert.Equal(t, 250, *ts.conf.CycleCountOverride())
	assert.Equal(t, 250, *ts.acq.request().CycleCountOverride)
	assert.Equal(t, 250, *ts.poller.Current().CycleCount)
	assert.True(t, ts.poller.Current().CycleCountOverridden)

	// Persisted.
	reloaded, err := config.NewFile(ts.conf.(*config.File).Path())
	require.NoError(t, err)
	require.NotNil(t, reloaded.CycleCountOverride())
	assert.Equal(t, 250, *reloaded.CycleCountOverride())

	w = ts.do(t, http.MethodPut, "/cycle-count", "-5")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(t, http.MethodPut, "/cycle-count", "lots")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 250, *ts.conf.CycleCountOverride())

	w = ts.do(t, http.MethodDelete, "/cycle-count", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, ts.conf.CycleCountOverride())
	assert.Nil(t, ts.acq.request().CycleCountOverride)
	assert.Equal(t, 200, *ts.poller.Current().CycleCount)
}

func TestGetConfig(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, w.Code)
	c := decode[config.RawFileConfig](t, w)
	require.NotNil(t, c.PollIntervalSeconds)
	assert.Equal(t, 1, *c.PollIntervalSeconds)
	require.NotNil(t, c.LowBatteryPercent)
	assert.Equal(t, 20, *c.LowBatteryPercent)
}

func TestGetStatus(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.scheduler.Schedule(JobRefresh, "@every 1h", func() error { return nil }))

	w := ts.do(t, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[types.StatusResponse](t, w)
	assert.Equal(t, "idle", st.Poller)
	assert.False(t, st.Scheduler)
	assert.Contains(t, st.NextRuns, JobRefresh)
}

func TestGetVersion(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, version.Version, decode[string](t, w))
}

func TestGetEvents(t *testing.T) {
	ts := newTestServer(t)
	ts.poller.Publish(ts.acq.Acquire(t.Context(), orchestrator.Request{}))

	srv := httptest.NewServer(ts.router)
	defer srv.Close()

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "event:"+events.BatteryLive)
}
