// Package planner defines the Planner contract (spec §6): an external
// collaborator that turns one Task into an ExecutionPlan. The core
// never implements planning itself — TaskExecutor only calls this
// interface and folds the result into TaskBoard publishes.
package planner

import (
	"context"

	"github.com/swarmguard/agentcore/internal/models"
)

// Step is one planned unit of work, matching spec §6's field list
// exactly (stepId, stepNumber, name, description, agentType,
// expectedOutput, dependencies).
type Step struct {
	StepID         string
	StepNumber     int
	Name           string
	Description    string
	AgentType      string
	ExpectedOutput string
	Dependencies   []string
}

// ExecutionFlow is the planner's DAG-shaped output before it is
// translated into SubTasks for the board.
type ExecutionFlow struct {
	Steps               []Step
	Dependencies         map[string][]string
	AdjustmentHistory    []FlowAdjustment
}

// FlowAdjustment records one applied quality-gate adjustment, mirroring
// the original's adjustment_history entries.
type FlowAdjustment struct {
	TriggerStepID string
	Result        string // "applied" | "failed"
}

// Plan is the full Planner.Plan output (spec §6).
type Plan struct {
	RefinedTask          string
	EstimatedComplexity  float64
	ExecutionFlow        ExecutionFlow
	SuggestedAgents      []string
}

// Request carries what a Planner needs to produce a Plan.
type Request struct {
	Task models.Task
}

// Planner is the external collaborator contract. Implementations are
// free to call an LLM, a rule engine, or anything else; the core treats
// the result as opaque beyond this shape.
type Planner interface {
	Plan(ctx context.Context, req Request) (Plan, error)
	// Revise re-plans in response to user or supervisor feedback,
	// without re-running the whole planning pipeline from scratch.
	Revise(ctx context.Context, current Plan, feedback string) (Plan, error)
}

// ToSubTasks converts a Plan's execution flow into SubTasks and a
// dependency map suitable for TaskBoard.Publish.
func ToSubTasks(parentTaskID string, flow ExecutionFlow) ([]models.SubTask, map[string]map[string]struct{}) {
	subtasks := make([]models.SubTask, 0, len(flow.Steps))
	deps := make(map[string]map[string]struct{}, len(flow.Steps))

	for _, step := range flow.Steps {
		depSet := make(map[string]struct{}, len(step.Dependencies))
		for _, d := range step.Dependencies {
			depSet[d] = struct{}{}
		}
		deps[step.StepID] = depSet

		subtasks = append(subtasks, models.SubTask{
			ID:           step.StepID,
			ParentTaskID: parentTaskID,
			Content:      step.Description,
			RoleHint:     step.AgentType,
			Dependencies: depSet,
			Priority:     step.StepNumber,
		})
	}

	return subtasks, deps
}
