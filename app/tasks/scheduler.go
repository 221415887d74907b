package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

var ErrQueueFull = errors.New("a run is already queued")

const taskTimeout = 10 * time.Minute

// Scheduler runs digest tasks on a cron schedule. One worker drains a queue
// of depth one, so at most one run is in flight and at most one is waiting.
// ctx gates intake; runCtx is what tasks see, and is only cancelled once the
// in-flight run has returned.
type Scheduler struct {
	cron       *cron.Cron
	newTask    func() TaskInterface
	ctx        context.Context
	cancel     context.CancelFunc
	runCtx     context.Context
	cancelRuns context.CancelFunc
	wg         sync.WaitGroup
	taskQueue  chan TaskInterface

	mu         sync.RWMutex
	lastReport *Report
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func NewScheduler(schedule string, location *time.Location, newTask func() TaskInterface) (*Scheduler, error) {
	if location == nil {
		location = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	runCtx, cancelRuns := context.WithCancel(context.Background())

	s := &Scheduler{
		cron:       cron.New(cron.WithParser(cronParser), cron.WithLocation(location)),
		newTask:    newTask,
		ctx:        ctx,
		cancel:     cancel,
		runCtx:     runCtx,
		cancelRuns: cancelRuns,
		taskQueue:  make(chan TaskInterface, 1),
	}

	if _, err := s.cron.AddFunc(schedule, s.enqueueScheduled); err != nil {
		cancel()
		cancelRuns()
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	s.cron.Start()

	if next, ok := s.NextRun(); ok {
		slog.Info("Scheduler started", "next_run", next.Format(time.RFC3339))
	}
}

// Stop stops accepting runs, drops a queued one and waits for the run in
// flight to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
	s.cancelRuns()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Trigger queues an out-of-schedule run.
func (s *Scheduler) Trigger() error {
	return s.EnqueueTask(s.newTask())
}

func (s *Scheduler) LastReport() (Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.lastReport == nil {
		return Report{}, false
	}
	return *s.lastReport, true
}

func (s *Scheduler) NextRun() (time.Time, bool) {
	entries := s.cron.Entries()
	if len(entries) == 0 || entries[0].Next.IsZero() {
		return time.Time{}, false
	}
	return entries[0].Next, true
}

func (s *Scheduler) enqueueScheduled() {
	if err := s.Trigger(); err != nil {
		slog.Warn("Failed to enqueue scheduled run", "error", err)
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			if s.ctx.Err() != nil {
				return
			}
			s.executeTask(task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.runCtx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)

	if reporter, ok := task.(Reporter); ok {
		report := reporter.Report()
		s.mu.Lock()
		s.lastReport = &report
		s.mu.Unlock()
	}

	if err != nil {
		slog.Error("Worker task execution failed", "type", string(task.GetType()), "id", task.GetID(), "duration", task.GetDuration(), "error", err)
	}
}
