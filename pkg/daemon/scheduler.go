package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Names of the maintenance jobs.
const (
	JobRefresh        = "refresh"
	JobPruneChargeLog = "prune-charge-log"
)

type NotifyFunc func(data any)

// TaskFunc represents a runnable task.
type TaskFunc func() error

// Scheduler runs named maintenance jobs on cron schedules. A job that is
// still running when its next run is due is skipped, and a panicking job
// does not take the daemon down.
type Scheduler struct {
	OnError NotifyFunc // called on task error

	parser cron.Parser
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool
}

func NewScheduler(onError NotifyFunc) *Scheduler {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	logger := cronLogger{logrus.WithField("component", "scheduler")}

	return &Scheduler{
		OnError: onError,
		parser:  parser,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(logger),
			cron.WithChain(cron.SkipIfStillRunning(logger), cron.Recover(logger)),
		),
		entries: make(map[string]cron.EntryID),
	}
}

// Schedule (re)schedules the job called name. An empty expression removes
// the job.
func (s *Scheduler) Schedule(name, cronExpr string, task TaskFunc) error {
	if task == nil {
		panic("task function cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	if cronExpr == "" {
		logrus.WithField("job", name).Debug("job disabled")
		return nil
	}

	sh, err := s.parser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", cronExpr, name, err)
	}

	s.entries[name] = s.cron.Schedule(sh, cron.FuncJob(func() {
		logrus.WithField("job", name).Debug("running scheduled job")
		if err := task(); err != nil {
			s.sendError(fmt.Errorf("%s failed: %w", name, err))
		}
	}))

	logrus.WithFields(logrus.Fields{
		"job":      name,
		"schedule": cronExpr,
	}).Debug("job scheduled")
	return nil
}

// Remove unschedules the job called name.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Next returns when the job called name runs next. The time is zero until
// the scheduler is started.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	logrus.Debug("scheduler started")
}

// Stop stops scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	logrus.Debug("scheduler stopped")
}

func (s *Scheduler) Status() (jobs map[string]time.Time, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs = make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		jobs[name] = s.cron.Entry(id).Next
	}
	return jobs, s.running
}

func (s *Scheduler) sendError(err error) {
	logrus.WithError(err).Error("scheduled job failed")
	if s.OnError == nil {
		return
	}

	go s.OnError(err)
}

// cronLogger routes cron's own logging to logrus.
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.entry.WithFields(kvFields(keysAndValues)).Trace(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.entry.WithError(err).WithFields(kvFields(keysAndValues)).Error(msg)
}

func kvFields(kv []any) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
