package main

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/swarmguard/agentcore/internal/agentrole"
	"github.com/swarmguard/agentcore/internal/models"
	"github.com/swarmguard/agentcore/internal/planner"
	"github.com/swarmguard/agentcore/internal/qualitygate"
)

// heuristicEstimator is a standalone stand-in for an LLM-backed complexity
// analyzer, scoring on content length and punctuation density. It uses
// the same length bands as mainagent.EstimateComplexitySync but coarser
// sentence and question-mark scoring. It exists only so this
// binary has something to pass MainAgent at construction time; a real
// deployment wires in an actual ComplexityEstimator collaborator.
type heuristicEstimator struct{}

var sentenceSplit = regexp.MustCompile(`[.!?。！？]`)

func (heuristicEstimator) AnalyzeComplexity(_ context.Context, task models.Task) (float64, error) {
	content := task.Content
	score := 0.0
	switch {
	case len(content) > 500:
		score += 2.0
	case len(content) > 200:
		score += 1.5
	case len(content) > 100:
		score += 1.0
	case len(content) > 50:
		score += 0.5
	}
	sentences := len(sentenceSplit.FindAllString(content, -1))
	switch {
	case sentences > 5:
		score += 2.0
	case sentences > 2:
		score += 1.0
	}
	questions := 0
	for _, r := range content {
		if r == '?' || r == '？' {
			questions++
		}
	}
	if questions > 0 {
		score += 0.5
	}
	if score > 10 {
		score = 10
	}
	return score, nil
}

// singleStepPlanner turns one Task into a single-step ExecutionFlow. It
// stands in for a real Planner collaborator (the original's TaskPlanner,
// backed by an LLM decomposition pass) — good enough to exercise the
// TaskExecutor/WaveExecutor pipeline end to end without one.
type singleStepPlanner struct{}

func (singleStepPlanner) Plan(_ context.Context, req planner.Request) (planner.Plan, error) {
	stepID := uuid.NewString()
	return planner.Plan{
		RefinedTask:         req.Task.Content,
		EstimatedComplexity: req.Task.ComplexityScore,
		ExecutionFlow: planner.ExecutionFlow{
			Steps: []planner.Step{{
				StepID:         stepID,
				StepNumber:     1,
				Name:           "handle-request",
				Description:    req.Task.Content,
				AgentType:      "general",
				ExpectedOutput: "a direct response to the task content",
			}},
			Dependencies: map[string][]string{stepID: nil},
		},
		SuggestedAgents: []string{"general"},
	}, nil
}

func (singleStepPlanner) Revise(_ context.Context, current planner.Plan, feedback string) (planner.Plan, error) {
	current.ExecutionFlow.AdjustmentHistory = append(current.ExecutionFlow.AdjustmentHistory, planner.FlowAdjustment{
		TriggerStepID: "",
		Result:        "applied",
	})
	current.RefinedTask = fmt.Sprintf("%s (revised: %s)", current.RefinedTask, feedback)
	return current, nil
}

// echoRunner is a stand-in AgentRoleRunner: it does not call any model,
// it only proves the wave executor drives real work through a role. A
// real deployment wires in an LLM-backed runner per spec §6.
type echoRunner struct{}

func (echoRunner) Run(_ context.Context, subtask models.SubTask, role agentrole.Role) (models.SubTaskResult, error) {
	return models.SubTaskResult{
		SubTaskID:     subtask.ID,
		Success:       true,
		Output:        fmt.Sprintf("[%s] processed: %s", role.Name, subtask.Content),
		ExecutionTime: time.Millisecond,
		OutputType:    "text",
	}, nil
}

// alwaysContinueEvaluator is a stand-in QualityEvaluator: every step
// passes review unconditionally. A real deployment wires in an
// LLM-backed supervisor per spec §6.
type alwaysContinueEvaluator struct{}

func (alwaysContinueEvaluator) Evaluate(_ context.Context, _ qualitygate.Step, _ qualitygate.StepResult) (qualitygate.Verdict, error) {
	return qualitygate.Verdict{Action: qualitygate.ActionContinue}, nil
}
