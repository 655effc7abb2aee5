package wave

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/swarmguard/agentcore/internal/models"
	"github.com/swarmguard/agentcore/internal/taskboard"
)

func depSet(ids ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func echoRunner(ctx context.Context, subtask models.SubTask) (string, error) {
	return "ok:" + subtask.ID, nil
}

func TestExecuteSingleStep(t *testing.T) {
	board := taskboard.New()
	ctx := context.Background()
	if err := board.Publish(ctx, []models.SubTask{{ID: "a"}}, map[string]map[string]struct{}{"a": {}}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	result := New(DefaultConfig()).Execute(ctx, board, "agent-1", echoRunner)
	if result.CompletedTasks != 1 || result.FailedTasks != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestExecuteLinearChain(t *testing.T) {
	board := taskboard.New()
	ctx := context.Background()
	tasks := []models.SubTask{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	deps := map[string]map[string]struct{}{
		"a": {}, "b": depSet("a"), "c": depSet("b"),
	}
	if err := board.Publish(ctx, tasks, deps); err != nil {
		t.Fatalf("publish: %v", err)
	}

	result := New(DefaultConfig()).Execute(ctx, board, "agent-1", echoRunner)
	if result.CompletedTasks != 3 || result.FailedTasks != 0 {
		t.Fatalf("expected all 3 completed, got %+v", result)
	}
	if result.TotalWaves != 3 {
		t.Fatalf("expected 3 sequential waves for a linear chain, got %d", result.TotalWaves)
	}
}

func TestExecuteParallelFanOutAndJoin(t *testing.T) {
	board := taskboard.New()
	ctx := context.Background()
	tasks := []models.SubTask{{ID: "root"}, {ID: "left"}, {ID: "right"}, {ID: "join"}}
	deps := map[string]map[string]struct{}{
		"root":  {},
		"left":  depSet("root"),
		"right": depSet("root"),
		"join":  depSet("left", "right"),
	}
	if err := board.Publish(ctx, tasks, deps); err != nil {
		t.Fatalf("publish: %v", err)
	}

	result := New(DefaultConfig()).Execute(ctx, board, "agent-1", echoRunner)
	if result.CompletedTasks != 4 || result.FailedTasks != 0 {
		t.Fatalf("expected all 4 completed, got %+v", result)
	}

	joinEntry, err := board.GetStatus(ctx, "join")
	if err != nil || joinEntry.Status != models.BoardCompleted {
		t.Fatalf("join should complete after both branches: %+v, err=%v", joinEntry, err)
	}
}

func TestExecutePropagatesFailureToDependents(t *testing.T) {
	board := taskboard.New()
	ctx := context.Background()
	tasks := []models.SubTask{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	deps := map[string]map[string]struct{}{
		"a": {}, "b": depSet("a"), "c": depSet("b"),
	}
	if err := board.Publish(ctx, tasks, deps); err != nil {
		t.Fatalf("publish: %v", err)
	}

	failingRunner := func(ctx context.Context, subtask models.SubTask) (string, error) {
		if subtask.ID == "a" {
			return "", fmt.Errorf("boom")
		}
		return "ok", nil
	}

	result := New(DefaultConfig()).Execute(ctx, board, "agent-1", failingRunner)
	if result.FailedTasks != 1 {
		t.Fatalf("expected 1 failed task, got %+v", result)
	}
	if result.CompletedTasks != 0 {
		t.Fatalf("b and c should never run once a fails, got %+v", result)
	}

	entryB, _ := board.GetStatus(ctx, "b")
	entryC, _ := board.GetStatus(ctx, "c")
	if entryB.Status != models.BoardBlocked || entryC.Status != models.BoardBlocked {
		t.Fatalf("expected b and c blocked after upstream failure, got b=%s c=%s", entryB.Status, entryC.Status)
	}
}

func TestExecuteConcurrencyCapLimitsActiveClaims(t *testing.T) {
	board := taskboard.New()
	ctx := context.Background()
	tasks := make([]models.SubTask, 0, 6)
	deps := map[string]map[string]struct{}{}
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("t%d", i)
		tasks = append(tasks, models.SubTask{ID: id})
		deps[id] = map[string]struct{}{}
	}
	if err := board.Publish(ctx, tasks, deps); err != nil {
		t.Fatalf("publish: %v", err)
	}

	var mu sync.Mutex
	maxConcurrent, current := 0, 0
	gatedRunner := func(ctx context.Context, subtask models.SubTask) (string, error) {
		mu.Lock()
		current++
		if current > maxConcurrent {
			maxConcurrent = current
		}
		mu.Unlock()

		time.Sleep(15 * time.Millisecond)

		mu.Lock()
		current--
		mu.Unlock()
		return "ok", nil
	}

	result := New(Config{MaxConcurrent: 2}).Execute(ctx, board, "agent-1", gatedRunner)
	if result.CompletedTasks != 6 {
		t.Fatalf("expected all 6 completed, got %+v", result)
	}
	if maxConcurrent > 2 {
		t.Fatalf("expected at most 2 concurrent runs, saw %d", maxConcurrent)
	}
}
