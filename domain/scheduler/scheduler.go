package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"github.com/bizsuite/server/internal/config"
	"github.com/bizsuite/server/pkg/logger"
)

var taskRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "scheduler_task_runs_total",
	Help: "Scheduled task executions by task and result.",
}, []string{"task", "result"})

var tasksThrottled = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "scheduler_tasks_throttled_total",
	Help: "Scheduled task runs skipped because system health was critical.",
}, []string{"task"})

// Scheduler runs named background tasks on cron expressions or fixed intervals.
type Scheduler struct {
	cron        *cron.Cron
	log         *slog.Logger
	taskTimeout time.Duration
	tasks       map[string]cron.EntryID
	mu          sync.RWMutex
	running     bool
}

// NewScheduler creates a scheduler with seconds precision.
func NewScheduler(cfg *config.Config, log *slog.Logger) *Scheduler {
	timeout := cfg.Scheduler.TaskTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Scheduler{
		cron:        cron.New(cron.WithSeconds()),
		log:         log.With(logger.Scope("scheduler")),
		taskTimeout: timeout,
		tasks:       make(map[string]cron.EntryID),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.cron.Start()
	s.running = true
	s.log.Info("scheduler started", slog.Int("tasks", len(s.tasks)))
	return nil
}

// Stop waits for in-flight tasks or until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.log.Info("scheduler stopped gracefully")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timeout")
	}

	s.running = false
	return nil
}

// AddCronTask registers task under name, replacing any task with the same name.
// Cron format: "second minute hour day-of-month month day-of-week"
func (s *Scheduler) AddCronTask(name string, schedule string, task TaskFunc) error {
	if err := s.add(name, schedule, task); err != nil {
		return err
	}
	s.log.Info("added cron task",
		slog.String("name", name),
		slog.String("schedule", schedule))
	return nil
}

func (s *Scheduler) AddIntervalTask(name string, interval time.Duration, task TaskFunc) error {
	if err := s.add(name, "@every "+interval.String(), task); err != nil {
		return err
	}
	s.log.Info("added interval task",
		slog.String("name", name),
		slog.Duration("interval", interval))
	return nil
}

// AddScheduledTask uses schedule when it is set and falls back to interval otherwise.
func (s *Scheduler) AddScheduledTask(name, schedule string, interval time.Duration, task TaskFunc) error {
	if schedule != "" {
		return s.AddCronTask(name, schedule, task)
	}
	return s.AddIntervalTask(name, interval, task)
}

func (s *Scheduler) add(name, spec string, task TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.tasks[name]; ok {
		s.cron.Remove(entryID)
		delete(s.tasks, name)
	}

	entryID, err := s.cron.AddFunc(spec, func() {
		s.runTask(name, task)
	})
	if err != nil {
		return err
	}
	s.tasks[name] = entryID
	return nil
}

func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, ok := s.tasks[name]; ok {
		s.cron.Remove(entryID)
		delete(s.tasks, name)
		s.log.Info("removed task", slog.String("name", name))
	}
}

// RunNow executes the named task synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.RLock()
	entryID, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	entry := s.cron.Entry(entryID)
	if entry.Job == nil {
		return false
	}
	entry.Job.Run()
	return true
}

func (s *Scheduler) runTask(name string, task TaskFunc) {
	startTime := time.Now()
	s.log.Debug("running scheduled task", slog.String("name", name))

	ctx, cancel := context.WithTimeout(context.Background(), s.taskTimeout)
	defer cancel()

	if err := task(ctx); err != nil {
		taskRuns.WithLabelValues(name, "error").Inc()
		s.log.Error("scheduled task failed",
			slog.String("name", name),
			logger.Error(err),
			slog.Duration("duration", time.Since(startTime)))
		return
	}

	taskRuns.WithLabelValues(name, "ok").Inc()
	s.log.Debug("scheduled task completed",
		slog.String("name", name),
		slog.Duration("duration", time.Since(startTime)))
}

// ListTasks returns the registered task names in lexical order.
func (s *Scheduler) ListTasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type TaskInfo struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
	PrevRun time.Time `json:"prev_run,omitempty"`
}

func (s *Scheduler) GetTaskInfo() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := make([]TaskInfo, 0, len(s.tasks))
	for name, entryID := range s.tasks {
		entry := s.cron.Entry(entryID)
		if !entry.Valid() {
			continue
		}
		info = append(info, TaskInfo{
			Name:    name,
			NextRun: entry.Next,
			PrevRun: entry.Prev,
		})
	}
	sort.Slice(info, func(i, j int) bool { return info[i].Name < info[j].Name })
	return info
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// TaskFunc is the function signature for scheduled tasks.
type TaskFunc func(ctx context.Context) error
