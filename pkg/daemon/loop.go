package daemon

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battlife/pkg/powerinfo"
)

// TimeSeriesRecorder records the times of the last N polling ticks.
type TimeSeriesRecorder struct {
	MaxRecordCount int
	LastTickTimes  []time.Time
	mu             *sync.Mutex
}

// NewTimeSeriesRecorder returns a new TimeSeriesRecorder.
func NewTimeSeriesRecorder(maxRecordCount int) *TimeSeriesRecorder {
	return &TimeSeriesRecorder{
		MaxRecordCount: maxRecordCount,
		LastTickTimes:  make([]time.Time, 0),
		mu:             &sync.Mutex{},
	}
}

// AddRecord adds a new record.
func (r *TimeSeriesRecorder) AddRecord(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Strip monotonic clock reading.
	// Sub on wall clock readings also counts the time the system was asleep.
	t = t.Round(0)

	if len(r.LastTickTimes) >= r.MaxRecordCount {
		r.LastTickTimes = r.LastTickTimes[1:]
	}
	r.LastTickTimes = append(r.LastTickTimes, t)
}

// ClearRecords clears all records.
func (r *TimeSeriesRecorder) ClearRecords() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.LastTickTimes = make([]time.Time, 0)
}

// GetLastRecord returns the last record.
func (r *TimeSeriesRecorder) GetLastRecord() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.LastTickTimes) == 0 {
		return time.Time{}
	}

	return r.LastTickTimes[len(r.LastTickTimes)-1]
}

// GetRecordsIn returns the number of continuous records in the last duration,
// counted back from now. Two records are continuous if they are less than
// interval+1s apart.
func (r *TimeSeriesRecorder) GetRecordsIn(now time.Time, last, interval time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now = now.Round(0)
	gap := interval + time.Second

	// The last record must be within one interval.
	if len(r.LastTickTimes) == 0 || now.Sub(r.LastTickTimes[len(r.LastTickTimes)-1]) >= gap {
		return 0
	}

	count := 0
	for i := len(r.LastTickTimes) - 1; i >= 0; i-- {
		record := r.LastTickTimes[i]
		if now.Sub(record) > last {
			break
		}

		theRecordAfter := record
		if i+1 < len(r.LastTickTimes) {
			theRecordAfter = r.LastTickTimes[i+1]
		}

		if theRecordAfter.Sub(record) >= gap {
			break
		}
		count++
	}

	return count
}

// MissedTicks reports whether the ticks stopped for much longer than the
// interval, which happens when the system slept. The battery may have
// changed in the meantime, so the caller should re-acquire everything.
func (r *TimeSeriesRecorder) MissedTicks(now time.Time, interval time.Duration) bool {
	last := r.GetLastRecord()
	if last.IsZero() {
		return false
	}
	elapsed := now.Round(0).Sub(last)
	if elapsed > 2*interval+time.Second {
		logrus.WithFields(logrus.Fields{
			"lastTick": last.Format(time.RFC3339),
			"elapsed":  elapsed.String(),
			"interval": interval.String(),
		}).Info("possibly missed polling ticks")
		return true
	}
	return false
}

type loopStatus struct {
	percent  int
	charging bool
	acOnline bool
	state    powerinfo.BatteryState
	alerts   powerinfo.AlertFlags
}

func statusOf(r *powerinfo.Record) loopStatus {
	s := loopStatus{state: r.Live.State, alerts: r.Alerts, percent: -1}
	if r.Live.Percent != nil {
		s.percent = *r.Live.Percent
	}
	if r.Live.Charging != nil {
		s.charging = *r.Live.Charging
	}
	if r.Live.ACOnline != nil {
		s.acOnline = *r.Live.ACOnline
	}
	return s
}

// printStatus logs the live status at debug level when it changed and at
// trace level otherwise.
func printStatus(prev, cur *powerinfo.Record) {
	currentStatus := statusOf(cur)

	fields := logrus.Fields{
		"percent":     currentStatus.percent,
		"charging":    currentStatus.charging,
		"acOnline":    currentStatus.acOnline,
		"state":       currentStatus.state.String(),
		"timeToEmpty": cur.Live.TimeToEmpty,
		"timeToFull":  cur.Live.TimeToFull,
	}
	if cur.Live.PowerW != nil {
		fields["powerW"] = *cur.Live.PowerW
	}
	if cur.Live.TemperatureC != nil {
		fields["temperatureC"] = *cur.Live.TemperatureC
	}

	if prev != nil && statusOf(prev) == currentStatus {
		logrus.WithFields(fields).Trace("polling status")
		return
	}

	logrus.WithFields(fields).Debug("polling status")
}
