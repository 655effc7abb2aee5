package taskboard

import (
	"context"
	"testing"
	"time"

	"github.com/swarmguard/agentcore/internal/models"
)

func depSet(ids ...string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func TestPublishLinearChainBlocksDependents(t *testing.T) {
	b := New()
	ctx := context.Background()

	tasks := []models.SubTask{
		{ID: "a", Content: "first"},
		{ID: "b", Content: "second"},
	}
	deps := map[string]map[string]struct{}{
		"a": {},
		"b": depSet("a"),
	}

	if err := b.Publish(ctx, tasks, deps); err != nil {
		t.Fatalf("publish: %v", err)
	}

	entryA, err := b.GetStatus(ctx, "a")
	if err != nil {
		t.Fatalf("get status a: %v", err)
	}
	if entryA.Status != models.BoardPending {
		t.Fatalf("expected a pending, got %s", entryA.Status)
	}

	entryB, err := b.GetStatus(ctx, "b")
	if err != nil {
		t.Fatalf("get status b: %v", err)
	}
	if entryB.Status != models.BoardBlocked {
		t.Fatalf("expected b blocked, got %s", entryB.Status)
	}
}

func TestPublishRejectsCycle(t *testing.T) {
	b := New()
	ctx := context.Background()

	tasks := []models.SubTask{{ID: "a"}, {ID: "b"}}
	deps := map[string]map[string]struct{}{
		"a": depSet("b"),
		"b": depSet("a"),
	}

	err := b.Publish(ctx, tasks, deps)
	if err == nil {
		t.Fatal("expected cycle error")
	}
	if _, ok := err.(*DependencyCycleError); !ok {
		t.Fatalf("expected DependencyCycleError, got %T", err)
	}
}

func TestPublishRejectsUnknownDependency(t *testing.T) {
	b := New()
	ctx := context.Background()

	tasks := []models.SubTask{{ID: "a"}}
	deps := map[string]map[string]struct{}{"a": depSet("ghost")}

	err := b.Publish(ctx, tasks, deps)
	if _, ok := err.(*UnknownDependencyError); !ok {
		t.Fatalf("expected UnknownDependencyError, got %T (%v)", err, err)
	}
}

func TestClaimIsExclusive(t *testing.T) {
	b := New()
	ctx := context.Background()
	_ = b.Publish(ctx, []models.SubTask{{ID: "a"}}, map[string]map[string]struct{}{"a": {}})

	r1 := b.Claim(ctx, "agent-1", "a")
	if !r1.Success {
		t.Fatalf("first claim should succeed: %s", r1.Error)
	}
	r2 := b.Claim(ctx, "agent-2", "a")
	if r2.Success {
		t.Fatal("second claim should fail")
	}
}

func TestOnCompletedUnlocksDependent(t *testing.T) {
	b := New()
	ctx := context.Background()
	tasks := []models.SubTask{{ID: "a"}, {ID: "b"}}
	deps := map[string]map[string]struct{}{"a": {}, "b": depSet("a")}
	_ = b.Publish(ctx, tasks, deps)

	b.Claim(ctx, "agent-1", "a")
	b.UpdateStatus(ctx, "a", models.BoardCompleted, nil)

	unlocked := b.OnCompleted(ctx, "a")
	if len(unlocked) != 1 || unlocked[0] != "b" {
		t.Fatalf("expected [b] unlocked, got %v", unlocked)
	}

	entryB, _ := b.GetStatus(ctx, "b")
	if entryB.Status != models.BoardPending {
		t.Fatalf("expected b pending after unlock, got %s", entryB.Status)
	}
}

func TestOnCompletedRequiresAllDependenciesDone(t *testing.T) {
	b := New()
	ctx := context.Background()
	tasks := []models.SubTask{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	deps := map[string]map[string]struct{}{
		"a": {}, "b": {}, "c": depSet("a", "b"),
	}
	_ = b.Publish(ctx, tasks, deps)

	b.UpdateStatus(ctx, "a", models.BoardCompleted, nil)
	unlocked := b.OnCompleted(ctx, "a")
	if len(unlocked) != 0 {
		t.Fatalf("c should stay blocked with b incomplete, got %v", unlocked)
	}

	b.UpdateStatus(ctx, "b", models.BoardCompleted, nil)
	unlocked = b.OnCompleted(ctx, "b")
	if len(unlocked) != 1 || unlocked[0] != "c" {
		t.Fatalf("expected [c] unlocked, got %v", unlocked)
	}
}

func TestReclaimExpiredRevertsStaleClaim(t *testing.T) {
	b := New()
	ctx := context.Background()
	_ = b.Publish(ctx, []models.SubTask{{ID: "a"}}, map[string]map[string]struct{}{"a": {}})
	b.Claim(ctx, "agent-1", "a")

	reclaimed := b.ReclaimExpired(ctx, time.Millisecond)
	if len(reclaimed) != 0 {
		t.Fatalf("claim should not be stale yet: %v", reclaimed)
	}

	time.Sleep(5 * time.Millisecond)
	reclaimed = b.ReclaimExpired(ctx, time.Millisecond)
	if len(reclaimed) != 1 || reclaimed[0] != "a" {
		t.Fatalf("expected [a] reclaimed, got %v", reclaimed)
	}

	entry, _ := b.GetStatus(ctx, "a")
	if entry.Status != models.BoardPending || entry.ClaimedBy != "" {
		t.Fatalf("expected a reverted to pending with no claimant, got %+v", entry)
	}
}

func TestReclaimExpiredSkipsStartedTasks(t *testing.T) {
	b := New()
	ctx := context.Background()
	_ = b.Publish(ctx, []models.SubTask{{ID: "a"}}, map[string]map[string]struct{}{"a": {}})
	b.Claim(ctx, "agent-1", "a")
	b.UpdateStatus(ctx, "a", models.BoardInProgress, nil)

	time.Sleep(5 * time.Millisecond)
	reclaimed := b.ReclaimExpired(ctx, time.Millisecond)
	if len(reclaimed) != 0 {
		t.Fatalf("in-progress task must not be reclaimed: %v", reclaimed)
	}
}

func TestGetAvailableFiltersByRoleAndSortsByPriority(t *testing.T) {
	b := New()
	ctx := context.Background()
	tasks := []models.SubTask{
		{ID: "low", RoleHint: "writer", Priority: 1},
		{ID: "high", RoleHint: "writer", Priority: 5},
		{ID: "other", RoleHint: "coder", Priority: 9},
	}
	deps := map[string]map[string]struct{}{"low": {}, "high": {}, "other": {}}
	_ = b.Publish(ctx, tasks, deps)

	available := b.GetAvailable(ctx, "agent-1", "writer")
	if len(available) != 2 {
		t.Fatalf("expected 2 writer tasks, got %d", len(available))
	}
	if available[0].TaskID != "high" {
		t.Fatalf("expected high-priority task first, got %s", available[0].TaskID)
	}
}
