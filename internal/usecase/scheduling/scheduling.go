package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gpimon/internal/domain"
)

// DefaultTaskTimeout bounds a single firing when no timeout is configured.
const DefaultTaskTimeout = 5 * time.Second

// OutputWriter queues output pin values. *gpi.Controller implements it.
type OutputWriter interface {
	RequestOutput(ctx context.Context, value uint64) error
}

// Task drives the output pins to Value on a schedule.
type Task struct {
	Name     string
	Schedule string // cron expression "*/5 * * * *" OR duration "30m"
	Value    uint64
	OneShot  bool
}

// Scheduler fires output writes on cron expressions or fixed intervals.
type Scheduler struct {
	cron    *cron.Cron
	writer  OutputWriter
	entries map[string]cron.EntryID
	logger  *slog.Logger
	timeout time.Duration
	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler that writes through w.
func NewScheduler(w OutputWriter, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		writer:  w,
		entries: make(map[string]cron.EntryID),
		logger:  logger,
		timeout: DefaultTaskTimeout,
	}
}

// AddTask schedules task. Task names are unique.
func (s *Scheduler) AddTask(task Task) error {
	schedule, err := parseSchedule(task.Schedule)
	if err != nil {
		return domain.NewSubSystemError("scheduler", "Scheduler.AddTask", domain.ErrInvalidInput,
			fmt.Sprintf("task %q schedule %q", task.Name, task.Schedule)).WithCause(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if task.Name == "" {
		return domain.NewSubSystemError("scheduler", "Scheduler.AddTask", domain.ErrInvalidInput, "task name is required")
	}
	if _, exists := s.entries[task.Name]; exists {
		return domain.NewSubSystemError("scheduler", "Scheduler.AddTask", domain.ErrInvalidInput,
			fmt.Sprintf("task %q already exists", task.Name))
	}

	var entryID cron.EntryID
	entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.fire(task)
		if task.OneShot {
			s.cron.Remove(entryID)
			s.mu.Lock()
			delete(s.entries, task.Name)
			s.mu.Unlock()
		}
	}))
	s.entries[task.Name] = entryID

	s.logger.Info("task added to scheduler",
		"name", task.Name,
		"schedule", task.Schedule,
		"value", domain.Mask(task.Value).String(),
		"one_shot", task.OneShot)
	return nil
}

func (s *Scheduler) fire(task Task) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		s.logger.Debug("scheduler stopped, skipping task", "task", task.Name)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.writer.RequestOutput(taskCtx, task.Value); err != nil {
		level := slog.LevelError
		if domain.IsRetryableError(err) {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "scheduled output write failed",
			"task", task.Name,
			"code", string(domain.ErrorCodeOf(err)),
			"error", err)
		return
	}
	s.logger.Debug("scheduled output write queued", "task", task.Name, "value", domain.Mask(task.Value).String())
}

// RemoveTask unschedules the named task.
func (s *Scheduler) RemoveTask(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, ok := s.entries[name]
	if !ok {
		return domain.NewSubSystemError("scheduler", "Scheduler.RemoveTask", domain.ErrNotFound, name)
	}
	s.cron.Remove(entryID)
	delete(s.entries, name)
	s.logger.Info("task removed from scheduler", "name", name)
	return nil
}

// Tasks lists the scheduled task names in sorted order.
func (s *Scheduler) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NextRun returns the next scheduled run time for a task, or nil if the task
// is unknown or the scheduler has not started.
func (s *Scheduler) NextRun(name string) *time.Time {
	s.mu.Lock()
	entryID, ok := s.entries[name]
	s.mu.Unlock()

	if !ok {
		return nil
	}
	entry := s.cron.Entry(entryID)
	if entry.ID == 0 || entry.Next.IsZero() {
		return nil
	}
	t := entry.Next
	return &t
}

// Start begins running the scheduler. Firings stop when ctx is done or Stop
// is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.started = true
	return nil
}

// Stop signals the scheduler to stop and waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.ctx = nil
	s.started = false
	s.mu.Unlock()

	// Running jobs take s.mu, so wait outside the lock.
	<-s.cron.Stop().Done()
	return nil
}

// parseSchedule tries to parse a schedule string as a cron expression first,
// then falls back to time.ParseDuration.
func parseSchedule(schedule string) (cron.Schedule, error) {
	if schedule == "" {
		return nil, fmt.Errorf("empty schedule")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(schedule); err == nil {
		return sched, nil
	}

	dur, err := time.ParseDuration(schedule)
	if err != nil {
		return nil, fmt.Errorf("not a valid cron expression or duration: %q", schedule)
	}
	if dur <= 0 {
		return nil, fmt.Errorf("duration must be positive: %q", schedule)
	}
	return constantDelay{delay: dur}, nil
}

// constantDelay implements cron.Schedule for a fixed interval.
// Unlike cron.Every(), it supports sub-second durations.
type constantDelay struct {
	delay time.Duration
}

func (d constantDelay) Next(t time.Time) time.Time {
	return t.Add(d.delay)
}
