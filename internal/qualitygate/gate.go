// Package qualitygate implements the post-step evaluation hook (spec
// §4.6), ported from the original's
// src/core/supervisor/quality_gate.py: evaluate a completed step,
// translate the verdict into continue/retry/add_step handling, and fold
// any accepted adjustments back into the execution flow and the team's
// TaskBoard.
package qualitygate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/swarmguard/agentcore/internal/models"
	"github.com/swarmguard/agentcore/internal/otelinit"
	"github.com/swarmguard/agentcore/internal/taskboard"
)

// Action is the verdict QualityEvaluator.Evaluate can return.
type Action string

const (
	ActionContinue Action = "continue"
	ActionRetry    Action = "retry"
	ActionAddStep  Action = "add_step"
)

// AdjustmentType names what kind of flow mutation an Adjustment carries.
type AdjustmentType string

const (
	AdjustAddStep    AdjustmentType = "add_step"
	AdjustModifyStep AdjustmentType = "modify_step"
	AdjustRemoveStep AdjustmentType = "remove_step"
)

// Adjustment is one flow mutation proposed by a QualityEvaluator verdict.
// Fields beyond Type are interpreted according to it; unused fields for a
// given Type are ignored rather than rejected (the evaluator is an
// external collaborator and may send more than the gate needs).
type Adjustment struct {
	Type        AdjustmentType
	StepID      string
	Description string
	AgentType   string
	Deps        []string
}

// Step is the minimal view of a plan step the evaluator needs — the same
// shape TaskExecutor carries for each ExecutionPlan entry.
type Step struct {
	StepID         string
	StepNumber     int
	Name           string
	Description    string
	AgentType      string
	ExpectedOutput string
	Dependencies   []string
}

// StepResult is what the evaluator is shown for a completed step; the
// original truncates output to 2000 chars before sending it to the
// supervisor and this package preserves that cap.
type StepResult struct {
	Output string
}

const outputPreviewLimit = 2000

// Verdict is the raw response from a QualityEvaluator.
type Verdict struct {
	Action      Action
	Adjustments []Adjustment
}

// Evaluator is the external collaborator contract (spec §6): an LLM- or
// rule-backed judge of one step's output.
type Evaluator interface {
	Evaluate(ctx context.Context, step Step, result StepResult) (Verdict, error)
}

// ReviewResult is the gate's own record of one review: the evaluator's
// action and adjustments as returned (Continue when the evaluator errors),
// plus the attempt number and review time.
type ReviewResult struct {
	StepID      string
	Action      Action
	Adjustments []Adjustment
	Attempt     int
	Timestamp   time.Time
}

// Gate wraps an Evaluator with error-degrading review and the
// adjustment-application policy from spec §4.6.
type Gate struct {
	evaluator Evaluator
	board     *taskboard.TaskBoard
}

// New constructs a Gate. board may be nil if add_step adjustments should
// never be published: ReviewStep still returns whatever action the
// evaluator gives, and ApplyAddStep then publishes nothing.
func New(evaluator Evaluator, board *taskboard.TaskBoard) *Gate {
	return &Gate{evaluator: evaluator, board: board}
}

// ReviewStep asks the evaluator to judge one completed step's output.
// Evaluator errors degrade to Continue rather than propagating — quality
// gating must never block progress on its own bugs.
func (g *Gate) ReviewStep(ctx context.Context, step Step, output string, attempt int) ReviewResult {
	_, end := otelinit.WithSpan(ctx, "qualitygate.review_step")
	defer end()

	preview := output
	if len(preview) > outputPreviewLimit {
		preview = preview[:outputPreviewLimit]
	}

	verdict, err := g.evaluator.Evaluate(ctx, step, StepResult{Output: preview})
	if err != nil {
		slog.Error("qualitygate: evaluator error, auto-continuing", "step_id", step.StepID, "error", err)
		return ReviewResult{StepID: step.StepID, Action: ActionContinue, Attempt: attempt, Timestamp: time.Now()}
	}

	return ReviewResult{
		StepID:      step.StepID,
		Action:      verdict.Action,
		Adjustments: verdict.Adjustments,
		Attempt:     attempt,
		Timestamp:   time.Now(),
	}
}

// ApplyAddStep publishes every add_step adjustment to the board as an
// additional batch, filtering deps to ids already known to the board.
// Publish failures are logged and otherwise ignored — a rejected
// adjustment must never abort an in-flight execution.
func (g *Gate) ApplyAddStep(ctx context.Context, adjustments []Adjustment) {
	if g.board == nil {
		return
	}
	_, end := otelinit.WithSpan(ctx, "qualitygate.apply_adjustments")
	defer end()

	for _, adj := range adjustments {
		if adj.Type != AdjustAddStep {
			continue
		}
		if adj.StepID == "" {
			continue
		}

		deps := make(map[string]struct{}, len(adj.Deps))
		for _, d := range adj.Deps {
			if !g.board.Has(d) {
				slog.Warn("qualitygate: dropping unknown dependency from add_step adjustment", "step_id", adj.StepID, "unknown_dep", d)
				continue
			}
			deps[d] = struct{}{}
		}

		subtask := models.SubTask{
			ID:                   adj.StepID,
			ParentTaskID:         "",
			Content:              adj.Description,
			RoleHint:             adj.AgentType,
			Dependencies:         deps,
			Priority:             0,
			EstimatedComplexity:  1.0,
		}

		depsMap := map[string]map[string]struct{}{adj.StepID: deps}
		if err := g.board.Publish(ctx, []models.SubTask{subtask}, depsMap); err != nil {
			slog.Warn("qualitygate: failed to publish add_step adjustment", "step_id", adj.StepID, "error", err)
		}
	}
}

// ErrMaxRetriesExhausted signals a caller should proceed as if Continue.
var ErrMaxRetriesExhausted = fmt.Errorf("qualitygate: retry budget exhausted")

// RetryBudget tracks the per-step retry counter the original keeps local
// to one wave-executor invocation (spec §4.6, §9 open question: not
// persisted across cancellations).
type RetryBudget struct {
	maxRetries int
	counts     map[string]int
}

// NewRetryBudget constructs a budget capped at maxRetries retries per step.
func NewRetryBudget(maxRetries int) *RetryBudget {
	return &RetryBudget{maxRetries: maxRetries, counts: make(map[string]int)}
}

// Allow increments and checks the counter for stepID. It returns false
// once the budget is exhausted, at which point the caller should treat
// the verdict as Continue.
func (b *RetryBudget) Allow(stepID string) bool {
	if b.counts[stepID] >= b.maxRetries {
		return false
	}
	b.counts[stepID]++
	return true
}
