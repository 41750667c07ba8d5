package daemon

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
)

func TestCronParse(t *testing.T) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse("@every 10m")
	if err != nil {
		t.Fatalf("failed to parse cron expression: %v", err)
	}

	now := time.Now()
	next1 := schedule.Next(now)
	next2 := schedule.Next(next1)

	if !next2.After(next1) {
		t.Fatalf("expected next2 to be after next1, got next1=%v next2=%v", next1, next2)
	}
}

func TestSchedulerInvalidExpression(t *testing.T) {
	s := NewScheduler(nil)
	if err := s.Schedule(JobRefresh, "every so often", func() error { return nil }); err == nil {
		t.Fatalf("expected an error for an invalid expression")
	}
	if _, ok := s.Next(JobRefresh); ok {
		t.Fatalf("invalid job should not be registered")
	}
}

func TestSchedulerReplaceAndRemove(t *testing.T) {
	s := NewScheduler(nil)
	task := func() error { return nil }

	if err := s.Schedule(JobRefresh, "@every 1h", task); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if err := s.Schedule(JobRefresh, "@every 2h", task); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	jobs, running := s.Status()
	if running {
		t.Fatalf("scheduler should not be running")
	}
	if len(jobs) != 1 {
		t.Fatalf("rescheduling must replace the job, got %d jobs", len(jobs))
	}

	if err := s.Schedule(JobRefresh, "", task); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if _, ok := s.Next(JobRefresh); ok {
		t.Fatalf("empty expression should remove the job")
	}

	_ = s.Schedule(JobPruneChargeLog, "@daily", task)
	s.Remove(JobPruneChargeLog)
	if _, ok := s.Next(JobPruneChargeLog); ok {
		t.Fatalf("job should be removed")
	}
}

func TestSchedulerRunsJob(t *testing.T) {
	var runs int32
	taskCh := make(chan struct{}, 4)

	s := NewScheduler(nil)
	if err := s.Schedule(JobRefresh, "@every 1s", func() error {
		atomic.AddInt32(&runs, 1)
		taskCh <- struct{}{}
		return nil
	}); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	s.Start()
	defer s.Stop()

	next, ok := s.Next(JobRefresh)
	if !ok || next.IsZero() {
		t.Fatalf("next run should be set once started")
	}

	select {
	case <-taskCh:
	case <-time.After(3 * time.Second):
		t.Fatalf("task did not execute in time")
	}
	if atomic.LoadInt32(&runs) == 0 {
		t.Fatalf("task should have run")
	}
}

func TestSchedulerReportsErrors(t *testing.T) {
	errCh := make(chan error, 2)

	s := NewScheduler(func(data any) {
		if err, ok := data.(error); ok {
			errCh <- err
		}
	})
	if err := s.Schedule(JobPruneChargeLog, "@every 1s", func() error {
		return errors.New("boom")
	}); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	s.Start()
	defer s.Stop()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatalf("expected an error")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("expected error callback from failed task")
	}
}

func TestSchedulerRecoversPanic(t *testing.T) {
	done := make(chan struct{}, 4)

	s := NewScheduler(nil)
	var calls int32
	_ = s.Schedule(JobRefresh, "@every 1s", func() error {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("first run panics")
		}
		done <- struct{}{}
		return nil
	})

	s.Start()
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(4 * time.Second):
		t.Fatalf("scheduler should keep running after a panicking job")
	}
}
