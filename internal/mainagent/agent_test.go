package mainagent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/swarmguard/agentcore/internal/models"
	"github.com/swarmguard/agentcore/internal/planner"
)

type stubEstimator struct {
	score float64
	err   error
}

func (s stubEstimator) AnalyzeComplexity(_ context.Context, _ models.Task) (float64, error) {
	return s.score, s.err
}

type stubExecutor struct {
	fn func(task models.Task, plan planner.Plan) models.TaskResult
}

func (s stubExecutor) ExecuteWithPlan(_ context.Context, task models.Task, plan planner.Plan) models.TaskResult {
	return s.fn(task, plan)
}

type stubPlanner struct{}

func (stubPlanner) Plan(_ context.Context, req planner.Request) (planner.Plan, error) {
	return planner.Plan{RefinedTask: req.Task.Content}, nil
}

func (stubPlanner) Revise(_ context.Context, current planner.Plan, feedback string) (planner.Plan, error) {
	current.RefinedTask = feedback
	return current, nil
}

func newTestAgent(exec PlanExecutor) *Agent {
	return New(DefaultConfig(), stubEstimator{score: 2.5}, exec, stubPlanner{})
}

func TestSubmitTaskValidatesAndClassifies(t *testing.T) {
	a := newTestAgent(nil)
	task, err := a.SubmitTask(context.Background(), "please research the history of compilers", nil)
	if err != nil {
		t.Fatalf("submit task: %v", err)
	}
	if task.Metadata["task_type"] != "research" {
		t.Fatalf("expected research classification, got %v", task.Metadata["task_type"])
	}
	if task.ComplexityScore != 2.5 {
		t.Fatalf("expected estimator score to win, got %f", task.ComplexityScore)
	}
	if task.Status != models.TaskPending {
		t.Fatalf("expected pending status, got %s", task.Status)
	}
}

func TestSubmitTaskRejectsEmptyContent(t *testing.T) {
	a := newTestAgent(nil)
	if _, err := a.SubmitTask(context.Background(), "   ", nil); err == nil {
		t.Fatal("expected ParsingError for whitespace-only content")
	}
}

func TestSubmitTaskRejectsTooLongContent(t *testing.T) {
	a := newTestAgent(nil)
	huge := strings.Repeat("x", DefaultConfig().MaxTaskContentLength+1)
	if _, err := a.SubmitTask(context.Background(), huge, nil); err == nil {
		t.Fatal("expected ParsingError for over-length content")
	}
}

func TestSubmitTaskFallsBackOnEstimatorError(t *testing.T) {
	a := New(DefaultConfig(), stubEstimator{err: errors.New("model unavailable")}, nil, stubPlanner{})
	task, err := a.SubmitTask(context.Background(), "do something", nil)
	if err != nil {
		t.Fatalf("submit task: %v", err)
	}
	if task.ComplexityScore != 5.0 {
		t.Fatalf("expected 5.0 fallback complexity, got %f", task.ComplexityScore)
	}
	if task.Metadata["complexity_analysis_error"] == nil {
		t.Fatal("expected complexity_analysis_error stashed in metadata")
	}
}

func TestEstimateComplexitySyncBands(t *testing.T) {
	short := EstimateComplexitySync("hi")
	long := EstimateComplexitySync(strings.Repeat("word ", 200) + "? ? ? ?")
	if short >= long {
		t.Fatalf("expected long/complex content to score higher: short=%f long=%f", short, long)
	}
	if long > 10 {
		t.Fatalf("expected score clamped to 10, got %f", long)
	}
}

func TestCancelTaskIsIdempotent(t *testing.T) {
	a := newTestAgent(nil)
	task, _ := a.SubmitTask(context.Background(), "a task", nil)

	if !a.CancelTask(context.Background(), task.ID) {
		t.Fatal("first cancel should succeed")
	}
	if a.CancelTask(context.Background(), task.ID) {
		t.Fatal("second cancel on an already-terminal task should report false")
	}
	if !a.IsTaskCancelled(task.ID) {
		t.Fatal("expected task to be marked cancelled")
	}
}

func TestCancelTaskUnknownReturnsFalse(t *testing.T) {
	a := newTestAgent(nil)
	if a.CancelTask(context.Background(), "ghost") {
		t.Fatal("expected false for unknown task")
	}
}

func TestExecuteWithTimeoutReturnsTimeoutFailure(t *testing.T) {
	exec := stubExecutor{fn: func(task models.Task, _ planner.Plan) models.TaskResult {
		time.Sleep(30 * time.Millisecond)
		return models.TaskResult{TaskID: task.ID, Success: true}
	}}
	cfg := DefaultConfig()
	cfg.ExecutionTimeout = 5 * time.Millisecond
	a := New(cfg, stubEstimator{score: 1}, exec, stubPlanner{})

	task, _ := a.SubmitTask(context.Background(), "slow task", nil)
	result := a.ExecuteWithTimeout(context.Background(), task)
	if result.Success {
		t.Fatal("expected timeout failure")
	}
	if !strings.Contains(result.Error, "timed out") {
		t.Fatalf("expected timeout error message, got %q", result.Error)
	}
}

func TestExecuteWithTimeoutReturnsResultWhenFastEnough(t *testing.T) {
	exec := stubExecutor{fn: func(task models.Task, _ planner.Plan) models.TaskResult {
		return models.TaskResult{TaskID: task.ID, Success: true, Output: "fast"}
	}}
	a := New(DefaultConfig(), stubEstimator{score: 1}, exec, stubPlanner{})

	task, _ := a.SubmitTask(context.Background(), "fast task", nil)
	result := a.ExecuteWithTimeout(context.Background(), task)
	if !result.Success || result.Output != "fast" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestGetProgressBands(t *testing.T) {
	a := newTestAgent(nil)
	task, _ := a.SubmitTask(context.Background(), "a task", nil)

	progress, err := a.GetProgress(task.ID)
	if err != nil || progress != 0 {
		t.Fatalf("expected 0 for pending, got %f, err=%v", progress, err)
	}

	got, _ := a.GetTask(task.ID)
	got.Status = models.TaskExecuting
	a.mu.Lock()
	a.tasks[task.ID] = &got
	a.results[task.ID] = models.TaskResult{
		Metadata: map[string]any{
			"wave_execution_result": models.WaveExecutionResult{CompletedTasks: 1, TotalTasks: 2},
		},
	}
	a.mu.Unlock()

	progress, err = a.GetProgress(task.ID)
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	want := progressExecutingFloor + 0.5*(progressExecutingCeiling-progressExecutingFloor)
	if progress != want {
		t.Fatalf("expected %f, got %f", want, progress)
	}
}

func TestGenerateSummaryCapsRecentErrorsAtTen(t *testing.T) {
	a := newTestAgent(nil)
	task, _ := a.SubmitTask(context.Background(), "a task", nil)

	var subResults []models.SubTaskResult
	for i := 0; i < 15; i++ {
		subResults = append(subResults, models.SubTaskResult{Success: false, Error: "failure"})
	}
	a.mu.Lock()
	a.results[task.ID] = models.TaskResult{SubResults: subResults}
	a.mu.Unlock()

	summary, err := a.GenerateSummary(task.ID)
	if err != nil {
		t.Fatalf("generate summary: %v", err)
	}
	if summary.FailedSubtasks != 15 {
		t.Fatalf("expected 15 failed subtasks counted, got %d", summary.FailedSubtasks)
	}
	if len(summary.RecentErrors) != 10 {
		t.Fatalf("expected RecentErrors capped at 10, got %d", len(summary.RecentErrors))
	}
}

func TestGracefulShutdownCancelsActiveTasks(t *testing.T) {
	a := newTestAgent(nil)
	task1, _ := a.SubmitTask(context.Background(), "task one", nil)
	task2, _ := a.SubmitTask(context.Background(), "task two", nil)
	_ = a.CancelTask(context.Background(), task2.ID)

	summary := a.GracefulShutdown(context.Background())
	if len(summary.CancelledTasks) != 1 || summary.CancelledTasks[0] != task1.ID {
		t.Fatalf("expected only task1 to be freshly cancelled, got %+v", summary)
	}
}
