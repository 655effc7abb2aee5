// Package mainagent implements MainAgent (spec §4.7), ported from the
// original's src/core/main_agent/agent.py: the submission surface and
// process-wide task registry. MainAgent owns no execution logic of its
// own beyond validation, classification, and bookkeeping — it delegates
// the actual run to an Executor and handles the execution timeout, timeout
// warnings and progress reporting itself.
package mainagent

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/swarmguard/agentcore/internal/models"
	"github.com/swarmguard/agentcore/internal/otelinit"
	"github.com/swarmguard/agentcore/internal/planner"
)

// ParsingError is returned by SubmitTask for invalid content.
type ParsingError struct{ Detail string }

func (e *ParsingError) Error() string { return fmt.Sprintf("mainagent: %s", e.Detail) }

// NotFoundError is returned for operations against an unknown task id.
type NotFoundError struct{ TaskID string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("mainagent: task not found: %s", e.TaskID) }

// Config mirrors the original's MainAgentConfig dataclass defaults.
type Config struct {
	ComplexityThreshold     float64
	ExecutionTimeout        time.Duration
	TimeoutWarningThreshold float64
	MinTaskContentLength    int
	MaxTaskContentLength    int
}

// DefaultConfig returns the original's dataclass field defaults.
func DefaultConfig() Config {
	return Config{
		ComplexityThreshold:     3.0,
		ExecutionTimeout:        time.Hour,
		TimeoutWarningThreshold: 0.8,
		MinTaskContentLength:    1,
		MaxTaskContentLength:    100000,
	}
}

// ComplexityEstimator is the external collaborator that scores a Task's
// complexity (the original's ITaskDecomposer.analyze_complexity). A 5.0
// fallback is used if it errors (spec §4.7).
type ComplexityEstimator interface {
	AnalyzeComplexity(ctx context.Context, task models.Task) (float64, error)
}

// PlanExecutor is the subset of the executor package's surface MainAgent
// needs: run one task against one plan.
type PlanExecutor interface {
	ExecuteWithPlan(ctx context.Context, task models.Task, plan planner.Plan) models.TaskResult
}

// TimeoutWarningFunc matches the executor package's callback shape.
type TimeoutWarningFunc func(taskID string, elapsed, remaining time.Duration)

// Agent is the submission surface and process-wide task registry.
type Agent struct {
	cfg        Config
	estimator  ComplexityEstimator
	executor   PlanExecutor
	planner    planner.Planner

	mu              sync.Mutex
	tasks           map[string]*models.Task
	results         map[string]models.TaskResult
	cancelled       map[string]struct{}
	executing       map[string]context.CancelFunc
	warnCallbacks   []TimeoutWarningFunc
}

// New constructs an Agent.
func New(cfg Config, estimator ComplexityEstimator, executor PlanExecutor, p planner.Planner) *Agent {
	return &Agent{
		cfg:       cfg,
		estimator: estimator,
		executor:  executor,
		planner:   p,
		tasks:     make(map[string]*models.Task),
		results:   make(map[string]models.TaskResult),
		cancelled: make(map[string]struct{}),
		executing: make(map[string]context.CancelFunc),
	}
}

var taskTypeKeywords = map[string][]string{
	"research":     {"research", "investigate", "study"},
	"analysis":     {"analyze", "evaluate", "compare"},
	"writing":      {"write", "draft", "compose"},
	"coding":       {"code", "program", "develop", "implement"},
	"translation":  {"translate", "convert"},
	"search":       {"search", "find", "lookup"},
	"summary":      {"summarize", "summary", "abstract"},
	"verification": {"verify", "validate", "confirm"},
}

// classify scores content against each category's keyword set and
// returns the highest-scoring category, or "general" if none match.
func classify(content string) string {
	lower := strings.ToLower(content)
	bestType := "general"
	bestScore := 0
	for taskType, keywords := range taskTypeKeywords {
		score := 0
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestType = taskType
		}
	}
	return bestType
}

// SubmitTask validates, classifies, and estimates complexity for a new
// submission (spec §4.7). It never executes the task.
func (a *Agent) SubmitTask(ctx context.Context, content string, metadata map[string]any) (models.Task, error) {
	ctx, end := otelinit.WithSpan(ctx, "mainagent.submit_task")
	defer end()

	if err := a.validateContent(content); err != nil {
		return models.Task{}, err
	}

	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata["task_type"] = classify(content)

	task := models.Task{
		ID:        uuid.NewString(),
		Content:   content,
		Status:    models.TaskPending,
		CreatedAt: time.Now(),
		Metadata:  metadata,
	}

	complexity, err := a.estimator.AnalyzeComplexity(ctx, task)
	if err != nil {
		complexity = 5.0
		task.Metadata["complexity_analysis_error"] = err.Error()
	}
	task.ComplexityScore = complexity

	a.mu.Lock()
	a.tasks[task.ID] = &task
	a.mu.Unlock()

	return task, nil
}

func (a *Agent) validateContent(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return &ParsingError{Detail: "task content cannot be empty or whitespace only"}
	}
	if utf8.RuneCountInString(trimmed) < a.cfg.MinTaskContentLength {
		return &ParsingError{Detail: fmt.Sprintf("task content too short (minimum %d characters)", a.cfg.MinTaskContentLength)}
	}
	if utf8.RuneCountInString(content) > a.cfg.MaxTaskContentLength {
		return &ParsingError{Detail: fmt.Sprintf("task content too long (maximum %d characters)", a.cfg.MaxTaskContentLength)}
	}
	return nil
}

var sentenceSplit = regexp.MustCompile(`[.!?。！？]`)

// EstimateComplexitySync is the original's synchronous heuristic
// fallback (_estimate_complexity_sync): length, sentence count, and
// question-mark density, clamped to [0,10]. Used by ParseTask and by
// callers that need a complexity score without the async estimator.
func EstimateComplexitySync(content string) float64 {
	score := 0.0
	length := utf8.RuneCountInString(content)
	switch {
	case length > 500:
		score += 2.0
	case length > 200:
		score += 1.5
	case length > 100:
		score += 1.0
	case length > 50:
		score += 0.5
	}

	sentences := 0
	for _, part := range sentenceSplit.Split(content, -1) {
		if strings.TrimSpace(part) != "" {
			sentences++
		}
	}
	switch {
	case sentences > 5:
		score += 2.0
	case sentences > 3:
		score += 1.0
	case sentences > 1:
		score += 0.5
	}

	questionCount := strings.Count(content, "?") + strings.Count(content, "？")
	switch {
	case questionCount > 3:
		score += 2.0
	case questionCount > 1:
		score += 1.0
	case questionCount > 0:
		score += 0.5
	}

	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}

// ParseTask is the synchronous counterpart to SubmitTask: validates and
// classifies without registering the task or calling the async estimator.
func (a *Agent) ParseTask(content string) (models.Task, error) {
	if err := a.validateContent(content); err != nil {
		return models.Task{}, err
	}
	return models.Task{
		ID:              uuid.NewString(),
		Content:         content,
		Status:          models.TaskPending,
		ComplexityScore: EstimateComplexitySync(content),
		CreatedAt:       time.Now(),
		Metadata:        map[string]any{"task_type": classify(content)},
	}, nil
}

// GetTaskStatus returns the current status of a registered task.
func (a *Agent) GetTaskStatus(taskID string) (models.TaskStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	task, ok := a.tasks[taskID]
	if !ok {
		return "", &NotFoundError{TaskID: taskID}
	}
	return task.Status, nil
}

// GetTask returns the registered Task, if any.
func (a *Agent) GetTask(taskID string) (models.Task, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	task, ok := a.tasks[taskID]
	if !ok {
		return models.Task{}, false
	}
	return *task, true
}

// GetTaskResult returns the terminal result for a task, if it has run.
func (a *Agent) GetTaskResult(taskID string) (models.TaskResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.results[taskID]
	return r, ok
}

// GetAllTasks returns a snapshot of every registered task.
func (a *Agent) GetAllTasks() map[string]models.Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]models.Task, len(a.tasks))
	for id, t := range a.tasks {
		out[id] = *t
	}
	return out
}

var activeStatuses = map[models.TaskStatus]struct{}{
	models.TaskPending:     {},
	models.TaskAnalyzing:   {},
	models.TaskDecomposing: {},
	models.TaskExecuting:   {},
	models.TaskAggregating: {},
}

// GetActiveTasks returns every task in a non-terminal status.
func (a *Agent) GetActiveTasks() []models.Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.Task
	for _, t := range a.tasks {
		if _, active := activeStatuses[t.Status]; active {
			out = append(out, *t)
		}
	}
	return out
}

// IsTaskCancelled reports whether CancelTask has been called for taskID.
func (a *Agent) IsTaskCancelled(taskID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.cancelled[taskID]
	return ok
}

// AddTimeoutWarningCallback registers a callback invoked by
// ExecuteWithTimeout's timeout watcher.
func (a *Agent) AddTimeoutWarningCallback(cb TimeoutWarningFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.warnCallbacks = append(a.warnCallbacks, cb)
}

// ExecuteTask asks the planner for a plan and executes task against it via
// the configured PlanExecutor, through the delegated TaskExecutor path.
func (a *Agent) ExecuteTask(ctx context.Context, task models.Task) (models.TaskResult, error) {
	plan, err := a.planner.Plan(ctx, planner.Request{Task: task})
	if err != nil {
		return models.TaskResult{}, fmt.Errorf("mainagent: planning failed: %w", err)
	}

	result := a.executor.ExecuteWithPlan(ctx, task, plan)

	a.mu.Lock()
	a.results[task.ID] = result
	if t, ok := a.tasks[task.ID]; ok {
		if result.Success {
			t.Status = models.TaskCompleted
		} else {
			t.Status = models.TaskFailed
		}
	}
	a.mu.Unlock()

	return result, nil
}

// ExecuteWithTimeout wraps ExecuteTask with a context-level deadline
// equal to cfg.ExecutionTimeout; on expiry it cancels the task and
// returns a failure TaskResult carrying a timeout error.
func (a *Agent) ExecuteWithTimeout(ctx context.Context, task models.Task) models.TaskResult {
	execCtx, cancel := context.WithTimeout(ctx, a.cfg.ExecutionTimeout)
	defer cancel()

	a.mu.Lock()
	a.executing[task.ID] = cancel
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.executing, task.ID)
		a.mu.Unlock()
	}()

	if warnAt := time.Duration(float64(a.cfg.ExecutionTimeout) * a.cfg.TimeoutWarningThreshold); warnAt > 0 {
		go func() {
			select {
			case <-execCtx.Done():
				return
			case <-time.After(warnAt):
			}
			a.mu.Lock()
			callbacks := append([]TimeoutWarningFunc(nil), a.warnCallbacks...)
			a.mu.Unlock()
			for _, cb := range callbacks {
				cb(task.ID, warnAt, a.cfg.ExecutionTimeout-warnAt)
			}
		}()
	}

	done := make(chan models.TaskResult, 1)
	go func() {
		result, err := a.ExecuteTask(execCtx, task)
		if err != nil {
			result = models.TaskResult{TaskID: task.ID, Success: false, Error: err.Error()}
		}
		done <- result
	}()

	select {
	case result := <-done:
		return result
	case <-execCtx.Done():
		return a.handleTimeout(task.ID)
	}
}

func (a *Agent) handleTimeout(taskID string) models.TaskResult {
	a.CancelTask(context.Background(), taskID)
	result := models.TaskResult{
		TaskID:        taskID,
		Success:       false,
		Error:         fmt.Sprintf("task execution timed out after %s", a.cfg.ExecutionTimeout),
		ExecutionTime: a.cfg.ExecutionTimeout,
	}
	a.mu.Lock()
	a.results[taskID] = result
	a.mu.Unlock()
	return result
}

// CancelTask marks a non-terminal task cancelled and cancels its
// in-flight execution handle, if any. Idempotent: returns false for an
// unknown or already-terminal task.
func (a *Agent) CancelTask(ctx context.Context, taskID string) bool {
	_, end := otelinit.WithSpan(ctx, "mainagent.cancel_task")
	defer end()

	a.mu.Lock()
	task, ok := a.tasks[taskID]
	if !ok || task.Status.IsTerminal() {
		a.mu.Unlock()
		return false
	}
	a.cancelled[taskID] = struct{}{}
	cancel, hasHandle := a.executing[taskID]
	task.Status = models.TaskCancelled
	a.mu.Unlock()

	if hasHandle {
		cancel()
	}

	slog.Info("mainagent: task cancelled", "task_id", taskID)
	return true
}

// ShutdownSummary is returned by GracefulShutdown.
type ShutdownSummary struct {
	CancelledTasks []string
	Errors         []string
}

// GracefulShutdown cancels every non-terminal task and returns a summary.
func (a *Agent) GracefulShutdown(ctx context.Context) ShutdownSummary {
	a.mu.Lock()
	ids := make([]string, 0, len(a.tasks))
	for id, t := range a.tasks {
		if !t.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	a.mu.Unlock()

	summary := ShutdownSummary{}
	for _, id := range ids {
		if a.CancelTask(ctx, id) {
			summary.CancelledTasks = append(summary.CancelledTasks, id)
		} else {
			summary.Errors = append(summary.Errors, fmt.Sprintf("task %s: failed to cancel", id))
		}
	}
	return summary
}

// progressBands mirrors the original's coarse status-to-percentage map
// (spec §4.7); Executing is linear between its bounds.
const (
	progressExecutingFloor   = 15.0
	progressExecutingCeiling = 85.0
)

// GetProgress computes a percentage from coarse status bands. For
// Executing it is linear in completed/total subtasks drawn from the
// task's most recent wave-execution metadata, if present.
func (a *Agent) GetProgress(taskID string) (float64, error) {
	a.mu.Lock()
	task, ok := a.tasks[taskID]
	a.mu.Unlock()
	if !ok {
		return 0, &NotFoundError{TaskID: taskID}
	}

	switch task.Status {
	case models.TaskPending:
		return 0, nil
	case models.TaskAnalyzing:
		return 5, nil
	case models.TaskDecomposing:
		return 10, nil
	case models.TaskExecuting:
		completed, total := a.subtaskProgress(taskID)
		if total == 0 {
			return progressExecutingFloor, nil
		}
		frac := float64(completed) / float64(total)
		return progressExecutingFloor + frac*(progressExecutingCeiling-progressExecutingFloor), nil
	case models.TaskAggregating:
		return 90, nil
	case models.TaskCompleted, models.TaskFailed, models.TaskCancelled:
		return 100, nil
	default:
		return 0, nil
	}
}

func (a *Agent) subtaskProgress(taskID string) (completed, total int) {
	a.mu.Lock()
	result, ok := a.results[taskID]
	a.mu.Unlock()
	if !ok {
		return 0, 0
	}
	waveAny, ok := result.Metadata["wave_execution_result"]
	if !ok {
		return 0, 0
	}
	wave, ok := waveAny.(models.WaveExecutionResult)
	if !ok {
		return 0, 0
	}
	return wave.CompletedTasks, wave.TotalTasks
}

// GenerateSummary reports sub-task success/failure counts and up to ten
// recent errors for a task.
func (a *Agent) GenerateSummary(taskID string) (Summary, error) {
	a.mu.Lock()
	task, ok := a.tasks[taskID]
	result, hasResult := a.results[taskID]
	a.mu.Unlock()
	if !ok {
		return Summary{}, &NotFoundError{TaskID: taskID}
	}

	summary := Summary{TaskID: taskID, Status: task.Status}
	if !hasResult {
		return summary, nil
	}

	for _, sr := range result.SubResults {
		if sr.Success {
			summary.SuccessfulSubtasks++
		} else {
			summary.FailedSubtasks++
			if len(summary.RecentErrors) < 10 && sr.Error != "" {
				summary.RecentErrors = append(summary.RecentErrors, sr.Error)
			}
		}
	}
	return summary, nil
}

// Summary is GenerateSummary's return shape.
type Summary struct {
	TaskID             string
	Status             models.TaskStatus
	SuccessfulSubtasks int
	FailedSubtasks     int
	RecentErrors       []string
}

// PlanTask produces a Plan for task without executing it (spec §6's
// confirm/revise flow).
func (a *Agent) PlanTask(ctx context.Context, task models.Task) (planner.Plan, error) {
	return a.planner.Plan(ctx, planner.Request{Task: task})
}

// ConfirmAndExecute runs an already-produced, possibly user-revised Plan.
func (a *Agent) ConfirmAndExecute(ctx context.Context, task models.Task, plan planner.Plan) models.TaskResult {
	result := a.executor.ExecuteWithPlan(ctx, task, plan)
	a.mu.Lock()
	a.results[task.ID] = result
	a.mu.Unlock()
	return result
}

// RevisePlan asks the planner to revise an existing plan given feedback.
func (a *Agent) RevisePlan(ctx context.Context, plan planner.Plan, feedback string) (planner.Plan, error) {
	return a.planner.Revise(ctx, plan, feedback)
}
