// Package executor implements TaskExecutor.ExecuteWithPlan (spec §4.5),
// ported from the original's src/core/main_agent/executor.py's
// execute_with_plan / _run_subtask_with_quality_gate pair: convert a
// plan into SubTasks, publish to a fresh team's TaskBoard, drive the
// WaveExecutor with a runner that enriches dependency output and folds
// in quality-gate verdicts, then always disband the team before
// returning.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/swarmguard/agentcore/internal/agentrole"
	"github.com/swarmguard/agentcore/internal/models"
	"github.com/swarmguard/agentcore/internal/otelinit"
	"github.com/swarmguard/agentcore/internal/planner"
	"github.com/swarmguard/agentcore/internal/qualitygate"
	"github.com/swarmguard/agentcore/internal/resilience"
	"github.com/swarmguard/agentcore/internal/team"
	"github.com/swarmguard/agentcore/internal/wave"
)

const (
	depOutputTruncateLimit = 4000
	contentTruncateLimit   = 4000
	defaultMaxRetries      = 2
	defaultTimeoutWarnPct  = 0.8

	defaultRunnerAttempts    = 3
	defaultRunnerBaseDelay   = 200 * time.Millisecond
	breakerWindow            = time.Minute
	breakerBuckets           = 6
	breakerMinSamples        = 5
	breakerFailureRateOpen   = 0.5
	breakerHalfOpenAfter     = 30 * time.Second
	breakerMaxHalfOpenProbes = 2
)

// RoleRunner is the AgentRoleRunner contract (spec §6) collapsed to one
// call: given an enriched subtask, produce a SubTaskResult.
type RoleRunner interface {
	Run(ctx context.Context, subtask models.SubTask, role agentrole.Role) (models.SubTaskResult, error)
}

// Config bounds one TaskExecutor.
type Config struct {
	ExecutionTimeout      time.Duration
	TimeoutWarnThreshold  float64 // fraction of ExecutionTimeout, e.g. 0.8
	MaxRetryOnFailure     int
	MaxConcurrentAgents   int64

	// RunnerMaxAttempts/RunnerRetryBaseDelay bound the transient-failure
	// retry (spec §7) wrapped around the RoleRunner call itself, distinct
	// from the quality-gate-driven retry in runSubtaskWithGate: this one
	// fires on a hard runner error (timeout, connection refused), not a
	// low-quality result.
	RunnerMaxAttempts    int
	RunnerRetryBaseDelay time.Duration
}

// DefaultConfig mirrors the original's MainAgentConfig execution defaults.
func DefaultConfig() Config {
	return Config{
		ExecutionTimeout:     time.Hour,
		TimeoutWarnThreshold: defaultTimeoutWarnPct,
		MaxRetryOnFailure:    defaultMaxRetries,
		RunnerMaxAttempts:    defaultRunnerAttempts,
		RunnerRetryBaseDelay: defaultRunnerBaseDelay,
	}
}

// TimeoutWarningFunc is invoked once per execution, at
// TimeoutWarnThreshold*ExecutionTimeout, with elapsed/remaining duration.
type TimeoutWarningFunc func(taskID string, elapsed, remaining time.Duration)

// Executor runs one Task to completion against an already-produced plan.
type Executor struct {
	cfg      Config
	teams    *team.Manager
	runner   RoleRunner
	gate     *qualitygate.Gate
	onWarn   TimeoutWarningFunc
	breakers *breakerPool
}

// New constructs an Executor. gate may be nil to disable quality gating
// entirely (every step behaves as Continue).
func New(cfg Config, teams *team.Manager, runner RoleRunner, gate *qualitygate.Gate, onWarn TimeoutWarningFunc) *Executor {
	return &Executor{cfg: cfg, teams: teams, runner: runner, gate: gate, onWarn: onWarn, breakers: newBreakerPool()}
}

// breakerPool hands out one adaptive CircuitBreaker per team, so a
// misbehaving RoleRunner on one team's agents can't trip the breaker for
// every other team's in-flight subtasks. Grounded on the teacher's
// api-gateway CircuitBreakerPool (per-service breaker, double-checked-lock
// Get), keyed here by team id instead of downstream service name.
type breakerPool struct {
	mu       sync.RWMutex
	breakers map[string]*resilience.CircuitBreaker
}

func newBreakerPool() *breakerPool {
	return &breakerPool{breakers: make(map[string]*resilience.CircuitBreaker)}
}

func (p *breakerPool) get(teamID string) *resilience.CircuitBreaker {
	p.mu.RLock()
	cb, ok := p.breakers[teamID]
	p.mu.RUnlock()
	if ok {
		return cb
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if cb, ok := p.breakers[teamID]; ok {
		return cb
	}
	cb = resilience.NewCircuitBreakerAdaptive(breakerWindow, breakerBuckets, breakerMinSamples, breakerFailureRateOpen, breakerHalfOpenAfter, breakerMaxHalfOpenProbes)
	p.breakers[teamID] = cb
	return cb
}

func (p *breakerPool) drop(teamID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.breakers, teamID)
}

// ExecuteWithPlan is the preferred entry path (spec §4.5): it never
// re-derives a plan, only executes the one given.
func (e *Executor) ExecuteWithPlan(ctx context.Context, task models.Task, plan planner.Plan) models.TaskResult {
	ctx, end := otelinit.WithSpan(ctx, "executor.execute_with_plan")
	defer end()

	start := time.Now()

	if len(plan.ExecutionFlow.Steps) == 0 {
		return e.failResult(task, start, fmt.Errorf("executor: plan has no steps"))
	}

	subtasks, depMap := planner.ToSubTasks(task.ID, plan.ExecutionFlow)
	if len(plan.SuggestedAgents) > 0 {
		for i := range subtasks {
			if i < len(plan.SuggestedAgents) {
				subtasks[i].RoleHint = plan.SuggestedAgents[i]
			}
		}
	}

	stepByID := make(map[string]qualitygate.Step, len(plan.ExecutionFlow.Steps))
	for _, s := range plan.ExecutionFlow.Steps {
		stepByID[s.StepID] = qualitygate.Step{
			StepID: s.StepID, StepNumber: s.StepNumber, Name: s.Name,
			Description: s.Description, AgentType: s.AgentType,
			ExpectedOutput: s.ExpectedOutput, Dependencies: s.Dependencies,
		}
	}

	roles := distinctRoles(subtasks)

	teamRec, err := e.teams.CreateTeam(ctx, task.ID, models.DefaultTeamConfig())
	if err != nil {
		return e.failResult(task, start, err)
	}
	defer e.cleanupTeam(context.Background(), teamRec.ID)

	if err := e.teams.SetupTeam(ctx, teamRec.ID, roles); err != nil {
		return e.failResult(task, start, err)
	}
	_ = e.teams.SetTeamState(teamRec.ID, models.TeamExecuting)

	board := e.teams.GetTaskBoard(teamRec.ID)
	if board == nil {
		return e.failResult(task, start, fmt.Errorf("executor: task board missing for team %s", teamRec.ID))
	}
	if err := board.Publish(ctx, subtasks, depMap); err != nil {
		return e.failResult(task, start, err)
	}

	subtaskByID := make(map[string]models.SubTask, len(subtasks))
	for _, st := range subtasks {
		subtaskByID[st.ID] = st
	}

	var outMu sync.Mutex
	outputs := make(map[string]models.SubTaskResult)
	retryBudget := qualitygate.NewRetryBudget(e.cfg.maxRetriesOrDefault())

	warnCtx, cancelWarn := context.WithCancel(ctx)
	defer cancelWarn()
	go e.watchTimeout(warnCtx, task.ID, start)

	execCtx := ctx
	if e.cfg.ExecutionTimeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.cfg.ExecutionTimeout)
		defer cancel()
	}

	runner := func(rc context.Context, subtask models.SubTask) (string, error) {
		return e.runSubtaskWithGate(rc, task, teamRec.ID, subtask, subtaskByID, &outMu, outputs, stepByID, retryBudget)
	}

	waveExec := wave.New(wave.Config{MaxConcurrent: e.cfg.MaxConcurrentAgents})
	waveResult := waveExec.Execute(execCtx, board, fmt.Sprintf("executor-%s", task.ID), runner)

	_ = e.teams.SetTeamState(teamRec.ID, models.TeamCompleted)

	success := waveResult.FailedTasks == 0 && waveResult.CompletedTasks > 0

	outMu.Lock()
	subResults := make([]models.SubTaskResult, 0, len(outputs))
	for _, r := range outputs {
		subResults = append(subResults, r)
	}
	var parts []string
	for _, st := range subtasks {
		if r, ok := outputs[st.ID]; ok && r.Success && r.Output != "" {
			parts = append(parts, r.Output)
		}
	}
	outMu.Unlock()

	var aggregated string
	if len(parts) > 0 {
		if len(parts) == 1 {
			aggregated = parts[0]
		} else {
			aggregated = strings.Join(parts, "\n\n---\n\n")
		}
	} else {
		aggregated = fmt.Sprintf("Completed %d/%d tasks in %d waves", waveResult.CompletedTasks, waveResult.TotalTasks, waveResult.TotalWaves)
	}

	var errStr string
	if !success {
		errStr = fmt.Sprintf("%d tasks failed", waveResult.FailedTasks)
	}

	return models.TaskResult{
		TaskID:        task.ID,
		Success:       success,
		Output:        aggregated,
		Error:         errStr,
		ExecutionTime: time.Since(start),
		SubResults:    subResults,
		Metadata: map[string]any{
			"task_plan":             plan,
			"wave_execution_result": waveResult,
		},
	}
}

func (e *Executor) runSubtaskWithGate(
	ctx context.Context,
	task models.Task,
	teamID string,
	subtask models.SubTask,
	subtaskByID map[string]models.SubTask,
	outMu *sync.Mutex,
	outputs map[string]models.SubTaskResult,
	stepByID map[string]qualitygate.Step,
	retryBudget *qualitygate.RetryBudget,
) (string, error) {
	role := agentrole.Resolve(subtask.RoleHint)

	outMu.Lock()
	enrichedContent := enrichContent(subtask, subtaskByID, outputs)
	outMu.Unlock()

	runnable := subtask
	runnable.Content = enrichedContent

	breaker := e.breakers.get(teamID)
	if !breaker.Allow() {
		return "", fmt.Errorf("executor: circuit open for team %s, refusing subtask %s", teamID, subtask.ID)
	}

	result, err := resilience.Retry(ctx, e.cfg.runnerAttemptsOrDefault(), e.cfg.runnerBaseDelayOrDefault(), func() (models.SubTaskResult, error) {
		return e.runner.Run(ctx, runnable, role)
	})
	breaker.RecordResult(err == nil && result.Success)
	if err != nil {
		return "", err
	}

	outMu.Lock()
	outputs[subtask.ID] = result
	outMu.Unlock()

	if !result.Success {
		return "", fmt.Errorf("executor: subtask %s failed: %s", subtask.ID, result.Error)
	}

	if e.gate == nil {
		return result.Output, nil
	}

	step, ok := stepByID[subtask.ID]
	if !ok {
		return result.Output, nil
	}

	review := e.gate.ReviewStep(ctx, step, result.Output, 1)
	switch review.Action {
	case qualitygate.ActionRetry:
		if retryBudget.Allow(subtask.ID) {
			outMu.Lock()
			delete(outputs, subtask.ID)
			outMu.Unlock()
			return e.runSubtaskWithGate(ctx, task, teamID, subtask, subtaskByID, outMu, outputs, stepByID, retryBudget)
		}
		slog.Warn("executor: retry budget exhausted, proceeding as continue", "subtask_id", subtask.ID)
		return result.Output, nil
	case qualitygate.ActionAddStep:
		e.gate.ApplyAddStep(ctx, review.Adjustments)
		return result.Output, nil
	default:
		return result.Output, nil
	}
}

func enrichContent(subtask models.SubTask, subtaskByID map[string]models.SubTask, outputs map[string]models.SubTaskResult) string {
	if len(subtask.Dependencies) == 0 {
		return subtask.Content
	}

	var sections []string
	for depID := range subtask.Dependencies {
		depResult, ok := outputs[depID]
		if !ok || !depResult.Success || depResult.Output == "" {
			continue
		}
		depDesc := depID
		if depSubtask, known := subtaskByID[depID]; known && depSubtask.Content != "" {
			depDesc = truncate(depSubtask.Content, 100)
		}
		depOutput := truncate(depResult.Output, depOutputTruncateLimit)
		sections = append(sections, fmt.Sprintf("### Prior task: %s\n%s", depDesc, depOutput))
	}

	if len(sections) == 0 {
		return subtask.Content
	}

	return fmt.Sprintf("%s\n\n## Prior task results (integrate the following into your output)\n\n%s",
		subtask.Content, strings.Join(sections, "\n\n---\n\n"))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func distinctRoles(subtasks []models.SubTask) []agentrole.Role {
	seen := make(map[string]struct{})
	var roles []agentrole.Role
	for _, st := range subtasks {
		hint := st.RoleHint
		if hint == "" {
			hint = "researcher"
		}
		if _, ok := seen[hint]; ok {
			continue
		}
		seen[hint] = struct{}{}
		roles = append(roles, agentrole.Resolve(hint))
	}
	return roles
}

func (e *Executor) watchTimeout(ctx context.Context, taskID string, start time.Time) {
	if e.cfg.ExecutionTimeout <= 0 {
		return
	}
	warnAt := time.Duration(float64(e.cfg.ExecutionTimeout) * e.cfg.timeoutWarnThresholdOrDefault())
	select {
	case <-ctx.Done():
		return
	case <-time.After(warnAt):
	}
	elapsed := time.Since(start)
	remaining := e.cfg.ExecutionTimeout - elapsed
	if e.onWarn != nil {
		e.onWarn(taskID, elapsed, remaining)
	}
}

func (e *Executor) cleanupTeam(ctx context.Context, teamID string) {
	defer e.breakers.drop(teamID)

	status, err := e.teams.GetTeamStatus(teamID)
	if err != nil {
		return
	}
	if status.State == models.TeamDisbanded {
		return
	}
	if _, err := e.teams.DisbandTeam(ctx, teamID, 30*time.Second); err != nil {
		slog.Warn("executor: disband failed during cleanup", "team_id", teamID, "error", err)
	}
}

func (c Config) maxRetriesOrDefault() int {
	if c.MaxRetryOnFailure > 0 {
		return c.MaxRetryOnFailure
	}
	return defaultMaxRetries
}

func (c Config) timeoutWarnThresholdOrDefault() float64 {
	if c.TimeoutWarnThreshold > 0 {
		return c.TimeoutWarnThreshold
	}
	return defaultTimeoutWarnPct
}

func (c Config) runnerAttemptsOrDefault() int {
	if c.RunnerMaxAttempts > 0 {
		return c.RunnerMaxAttempts
	}
	return defaultRunnerAttempts
}

func (c Config) runnerBaseDelayOrDefault() time.Duration {
	if c.RunnerRetryBaseDelay > 0 {
		return c.RunnerRetryBaseDelay
	}
	return defaultRunnerBaseDelay
}

func (e *Executor) failResult(task models.Task, start time.Time, err error) models.TaskResult {
	return models.TaskResult{
		TaskID:        task.ID,
		Success:       false,
		Error:         err.Error(),
		ExecutionTime: time.Since(start),
	}
}
