package daemon

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battlife/pkg/chargelog"
	"github.com/charlie0129/battlife/pkg/config"
	"github.com/charlie0129/battlife/pkg/events"
	"github.com/charlie0129/battlife/pkg/orchestrator"
	"github.com/charlie0129/battlife/pkg/powerinfo"
)

// ErrPollerStopped is returned by Refresh when the poller stops before
// answering.
var ErrPollerStopped = errors.New("poller stopped")

// State is the poller state.
type State int

const (
	Idle State = iota
	Polling
)

func (s State) String() string {
	if s == Polling {
		return "polling"
	}
	return "idle"
}

// Acquirer is what the poller needs from the orchestrator.
type Acquirer interface {
	Acquire(ctx context.Context, req orchestrator.Request) *powerinfo.Record
	AcquireLive(ctx context.Context) (powerinfo.Live, []powerinfo.Failure)
}

// ChargeLog is the historical charge log the poller appends to.
type ChargeLog interface {
	Append(ctx context.Context, e powerinfo.ChargeLogEntry) error
	Last(ctx context.Context) (*powerinfo.ChargeLogEntry, error)
}

// Publisher receives events. *events.EventHub implements it.
type Publisher interface {
	Publish(name string, payload any)
}

type refreshRequest struct {
	force bool
	reply chan *powerinfo.Record
}

// Poller owns the current record. A single worker goroutine writes it: on
// every tick it re-reads the live status, and on request it runs a full
// acquisition. Readers load the current record without locking and always
// see a complete one.
type Poller struct {
	acq  Acquirer
	conf config.Config
	log  ChargeLog
	hub  Publisher
	now  func() time.Time

	current  atomic.Pointer[powerinfo.Record]
	writeMu  sync.Mutex
	alerts   *alertTracker
	recorder *TimeSeriesRecorder

	mu        sync.Mutex
	state     State
	cancel    context.CancelFunc
	stopCh    chan struct{}
	done      chan struct{}
	refreshCh chan refreshRequest
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithChargeLog makes the poller append a sample to l on every tick.
func WithChargeLog(l ChargeLog) PollerOption {
	return func(p *Poller) {
		p.log = l
	}
}

// WithPublisher sets where live updates and alerts are published.
func WithPublisher(pub Publisher) PollerOption {
	return func(p *Poller) {
		p.hub = pub
	}
}

// WithPollerClock replaces time.Now, mainly for tests.
func WithPollerClock(now func() time.Time) PollerOption {
	return func(p *Poller) {
		p.now = now
	}
}

func NewPoller(acq Acquirer, conf config.Config, opts ...PollerOption) *Poller {
	p := &Poller{
		acq:      acq,
		conf:     conf,
		now:      time.Now,
		alerts:   newAlertTracker(),
		recorder: NewTimeSeriesRecorder(60),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// State returns whether the worker is running.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Current returns the latest published record, or nil before the first
// acquisition finished. The returned record must not be modified.
func (p *Poller) Current() *powerinfo.Record {
	return p.current.Load()
}

// Start launches the worker. It first runs a full acquisition, then polls the
// live status every PollInterval. Calling Start on a running poller is a
// no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Polling {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	p.refreshCh = make(chan refreshRequest)
	p.state = Polling

	go p.run(ctx, p.stopCh, p.done, p.refreshCh)
	logrus.WithField("interval", p.conf.PollInterval().String()).Info("poller started")
}

// Stop signals the worker and waits for it to return. In-flight source calls
// are cancelled through their context.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state != Polling {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.cancel()
	done := p.done
	p.mu.Unlock()

	<-done

	p.mu.Lock()
	p.state = Idle
	p.mu.Unlock()
	logrus.Info("poller stopped")
}

func (p *Poller) run(ctx context.Context, stopCh <-chan struct{}, done chan<- struct{}, refreshCh <-chan refreshRequest) {
	defer close(done)

	p.acquire(ctx, false)

	timer := time.NewTimer(p.conf.PollInterval())
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case req := <-refreshCh:
			req.reply <- p.acquire(ctx, req.force)
		case <-timer.C:
			p.tick(ctx)
			timer.Reset(p.conf.PollInterval())
		}
	}
}

// Refresh runs a full acquisition and publishes the result. While the poller
// is running the acquisition is handed to the worker so there is only ever
// one writer.
func (p *Poller) Refresh(ctx context.Context, force bool) (*powerinfo.Record, error) {
	p.mu.Lock()
	running := p.state == Polling
	refreshCh, done := p.refreshCh, p.done
	p.mu.Unlock()

	if !running {
		return p.acquire(ctx, force), nil
	}

	req := refreshRequest{force: force, reply: make(chan *powerinfo.Record, 1)}
	select {
	case refreshCh <- req:
	case <-done:
		return nil, ErrPollerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case rec := <-req.reply:
		return rec, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Poller) acquire(ctx context.Context, force bool) *powerinfo.Record {
	rec := p.acq.Acquire(ctx, orchestrator.Request{
		CycleCountOverride: p.conf.CycleCountOverride(),
		ForceRefresh:       force,
	})
	p.Publish(rec)
	if p.hub != nil {
		p.hub.Publish(events.BatteryRecord, events.RecordUpdate{
			Record: p.Current(),
			Forced: force,
			Ts:     p.now().Unix(),
		})
	}
	return p.Current()
}

func (p *Poller) tick(ctx context.Context) {
	now := p.now()
	missed := p.recorder.MissedTicks(now, p.conf.PollInterval())
	p.recorder.AddRecord(now)

	prev := p.Current()
	if prev == nil || missed {
		p.acquire(ctx, false)
		return
	}
	if !prev.Present {
		logrus.Trace("no battery present, nothing to poll")
		return
	}

	live, failures := p.acq.AcquireLive(ctx)
	if ctx.Err() != nil {
		// Stopping. A half-cancelled read is not worth publishing.
		return
	}

	rec := prev.WithLive(live, now)
	rec.Failures = replaceLiveFailures(prev.Failures, failures)
	p.Publish(rec)
}

// Publish makes rec the current record. It evaluates alerts, appends to the
// charge log and notifies subscribers. rec is owned by the poller afterwards.
func (p *Poller) Publish(rec *powerinfo.Record) {
	if rec == nil {
		return
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	now := p.now()
	prev := p.current.Load()

	var raised []events.Alert
	if rec.Present {
		rec.Alerts, raised = p.alerts.evaluate(rec.Live, AlertThresholds{
			LowBatteryPercent:      p.conf.LowBatteryPercent(),
			HighTemperatureCelsius: p.conf.HighTemperatureCelsius(),
			Cooldown:               p.conf.AlertCooldown(),
		}, now)
		p.appendChargeLog(rec.Live, now)
	}

	p.current.Store(rec)
	printStatus(prev, rec)

	if p.hub == nil {
		return
	}
	p.hub.Publish(events.BatteryLive, events.LiveUpdate{
		Live:   rec.Live,
		Alerts: rec.Alerts,
		Ts:     now.Unix(),
	})
	for _, a := range raised {
		logrus.WithFields(logrus.Fields{
			"kind":      a.Kind,
			"value":     a.Value,
			"threshold": a.Threshold,
		}).Warn(a.Message)
		p.hub.Publish(events.BatteryAlert, a)
	}
}

func (p *Poller) appendChargeLog(l powerinfo.Live, now time.Time) {
	if p.log == nil || l.Percent == nil {
		return
	}

	// Not bound to the worker context: a sample taken just before stopping
	// should still be written.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	charging := l.Charging != nil && *l.Charging
	last, err := p.log.Last(ctx)
	if err != nil {
		logrus.WithError(err).Warn("failed to read charge log")
		return
	}
	if last != nil && last.Percent == *l.Percent && last.Charging == charging {
		return
	}

	e := powerinfo.ChargeLogEntry{
		Timestamp:         now,
		Percent:           *l.Percent,
		Charging:          charging,
		CycleContribution: chargelog.Contribution(last, *l.Percent, charging),
	}
	if err := p.log.Append(ctx, e); err != nil {
		logrus.WithError(err).Warn("failed to append to charge log")
	}
}

// replaceLiveFailures keeps the failures of the full acquisition except the
// live ones, which are replaced by those of the latest tick.
func replaceLiveFailures(prev, live []powerinfo.Failure) []powerinfo.Failure {
	out := make([]powerinfo.Failure, 0, len(prev)+len(live))
	for _, f := range prev {
		if f.Field == powerinfo.FieldLive || f.Field == powerinfo.FieldTemperature {
			continue
		}
		out = append(out, f)
	}
	return append(out, live...)
}
