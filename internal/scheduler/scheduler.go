// Package scheduler implements the scheduled-submission surface (spec
// §12.2): a narrow cron-driven trigger that calls MainAgent.SubmitTask
// on a timer. Grounded on the teacher's scheduler.go, trimmed to this
// one concern — it never touches TaskBoard or Team state, so it cannot
// be confused with the orchestration core's in-memory persistence
// boundary.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/agentcore/internal/models"
	"github.com/swarmguard/agentcore/internal/otelinit"
)

// Submitter is the subset of MainAgent.Agent the scheduler depends on.
type Submitter interface {
	SubmitTask(ctx context.Context, content string, metadata map[string]any) (models.Task, error)
}

// ScheduleConfig describes one recurring submission.
type ScheduleConfig struct {
	Name     string
	CronExpr string
	Content  string
	Metadata map[string]any
	Enabled  bool
}

// Scheduler drives ScheduleConfig entries against a Submitter on a
// robfig/cron timer.
type Scheduler struct {
	cron   *cron.Cron
	submit Submitter

	mu      sync.Mutex
	entries map[string]cron.EntryID

	runs  metric.Int64Counter
	fails metric.Int64Counter
	tracer trace.Tracer
}

// New constructs a Scheduler with second-precision cron parsing.
func New(submit Submitter) *Scheduler {
	meter := otel.GetMeterProvider().Meter(otelinit.Tracer)
	runs, _ := meter.Int64Counter("agentcore_scheduler_submissions_total")
	fails, _ := meter.Int64Counter("agentcore_scheduler_submission_failures_total")

	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		submit:  submit,
		entries: make(map[string]cron.EntryID),
		runs:    runs,
		fails:   fails,
		tracer:  otel.Tracer(otelinit.Tracer),
	}
}

// Start begins running registered schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started")
}

// Stop gracefully waits for in-flight cron jobs to finish, up to ctx's
// deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		slog.Info("scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.Warn("scheduler stop timed out")
		return ctx.Err()
	}
}

// AddSchedule registers a cron-driven submission.
func (s *Scheduler) AddSchedule(ctx context.Context, cfg ScheduleConfig) error {
	_, end := otelinit.WithSpan(ctx, "scheduler.add_schedule")
	defer end()

	if cfg.CronExpr == "" {
		return fmt.Errorf("scheduler: cron_expr must be specified")
	}
	if !cfg.Enabled {
		return nil
	}

	entryID, err := s.cron.AddFunc(cfg.CronExpr, func() {
		s.runOnce(context.Background(), cfg)
	})
	if err != nil {
		return fmt.Errorf("scheduler: add cron schedule: %w", err)
	}

	s.mu.Lock()
	s.entries[cfg.Name] = entryID
	s.mu.Unlock()

	slog.Info("schedule added", "name", cfg.Name, "cron", cfg.CronExpr)
	return nil
}

// RemoveSchedule unregisters a named schedule.
func (s *Scheduler) RemoveSchedule(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
		slog.Info("schedule removed", "name", name)
	}
}

func (s *Scheduler) runOnce(ctx context.Context, cfg ScheduleConfig) {
	ctx, span := s.tracer.Start(ctx, "scheduler.submit",
		trace.WithAttributes(attribute.String("schedule", cfg.Name)))
	defer span.End()

	task, err := s.submit.SubmitTask(ctx, cfg.Content, cfg.Metadata)
	attrs := metric.WithAttributes(attribute.String("schedule", cfg.Name))
	if err != nil {
		s.fails.Add(ctx, 1, attrs)
		slog.Error("scheduled submission failed", "name", cfg.Name, "error", err)
		return
	}

	s.runs.Add(ctx, 1, attrs)
	slog.Info("scheduled submission created task", "name", cfg.Name, "task_id", task.ID)
}

// EntryCount reports how many schedules are currently registered.
func (s *Scheduler) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
