package qualitygate

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/swarmguard/agentcore/internal/models"
	"github.com/swarmguard/agentcore/internal/taskboard"
)

type stubEvaluator struct {
	verdict Verdict
	err     error
}

func (s stubEvaluator) Evaluate(_ context.Context, _ Step, _ StepResult) (Verdict, error) {
	return s.verdict, s.err
}

func TestReviewStepReturnsEvaluatorVerdict(t *testing.T) {
	g := New(stubEvaluator{verdict: Verdict{Action: ActionRetry}}, nil)
	result := g.ReviewStep(context.Background(), Step{StepID: "s1"}, "some output", 1)
	if result.Action != ActionRetry {
		t.Fatalf("expected retry, got %s", result.Action)
	}
	if result.StepID != "s1" || result.Attempt != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestReviewStepDegradesToContinueOnEvaluatorError(t *testing.T) {
	g := New(stubEvaluator{err: fmt.Errorf("boom")}, nil)
	result := g.ReviewStep(context.Background(), Step{StepID: "s1"}, "output", 0)
	if result.Action != ActionContinue {
		t.Fatalf("expected evaluator error to degrade to continue, got %s", result.Action)
	}
}

func TestReviewStepTruncatesOutputPreview(t *testing.T) {
	var seen string
	capturing := captureEvaluator{capture: &seen}
	g := New(capturing, nil)

	huge := strings.Repeat("x", outputPreviewLimit+500)
	g.ReviewStep(context.Background(), Step{StepID: "s1"}, huge, 0)

	if len(seen) != outputPreviewLimit {
		t.Fatalf("expected preview truncated to %d chars, got %d", outputPreviewLimit, len(seen))
	}
}

type captureEvaluator struct {
	capture *string
}

func (c captureEvaluator) Evaluate(_ context.Context, _ Step, result StepResult) (Verdict, error) {
	*c.capture = result.Output
	return Verdict{Action: ActionContinue}, nil
}

func TestApplyAddStepPublishesToBoard(t *testing.T) {
	board := taskboard.New()
	g := New(stubEvaluator{}, board)

	g.ApplyAddStep(context.Background(), []Adjustment{
		{Type: AdjustAddStep, StepID: "extra-1", Description: "do more", AgentType: "writer"},
		{Type: AdjustModifyStep, StepID: "ignored"},
	})

	entry, err := board.GetStatus(context.Background(), "extra-1")
	if err != nil {
		t.Fatalf("expected add_step adjustment published, got error: %v", err)
	}
	if entry.RoleHint != "writer" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if _, err := board.GetStatus(context.Background(), "ignored"); err == nil {
		t.Fatal("modify_step adjustment should not publish a new board entry")
	}
}

func TestApplyAddStepFiltersUnknownDeps(t *testing.T) {
	board := taskboard.New()
	g := New(stubEvaluator{}, board)

	if err := board.Publish(context.Background(), []models.SubTask{{ID: "known-1"}}, map[string]map[string]struct{}{}); err != nil {
		t.Fatalf("seed publish: %v", err)
	}

	g.ApplyAddStep(context.Background(), []Adjustment{
		{Type: AdjustAddStep, StepID: "extra-2", Description: "do more", AgentType: "writer", Deps: []string{"known-1", "ghost-dep"}},
	})

	entry, err := board.GetStatus(context.Background(), "extra-2")
	if err != nil {
		t.Fatalf("expected add_step adjustment published despite one unknown dep, got error: %v", err)
	}
	if _, ok := entry.Dependencies["ghost-dep"]; ok {
		t.Fatal("unknown dependency should have been filtered out")
	}
	if _, ok := entry.Dependencies["known-1"]; !ok {
		t.Fatal("known dependency should have been preserved")
	}
}

func TestApplyAddStepNoopsWithNilBoard(t *testing.T) {
	g := New(stubEvaluator{}, nil)
	g.ApplyAddStep(context.Background(), []Adjustment{{Type: AdjustAddStep, StepID: "x"}})
}

func TestRetryBudgetExhausts(t *testing.T) {
	b := NewRetryBudget(2)
	if !b.Allow("s1") {
		t.Fatal("first retry should be allowed")
	}
	if !b.Allow("s1") {
		t.Fatal("second retry should be allowed")
	}
	if b.Allow("s1") {
		t.Fatal("third retry should be denied")
	}
}

func TestRetryBudgetIsPerStep(t *testing.T) {
	b := NewRetryBudget(1)
	if !b.Allow("s1") || !b.Allow("s2") {
		t.Fatal("distinct steps should have independent budgets")
	}
}
