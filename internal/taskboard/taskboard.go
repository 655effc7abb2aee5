// Package taskboard implements the shared, concurrency-safe DAG state for
// one team's sub-tasks (spec §4.1), ported from the original's
// src/task_board.py: publish with cycle detection, atomic claim, auto
// unlock on completion, and timeout reclamation.
package taskboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/swarmguard/agentcore/internal/models"
	"github.com/swarmguard/agentcore/internal/otelinit"
)

// DependencyCycleError is returned by Publish when the combined forward-edge
// graph (existing completed nodes plus the new batch) is not a DAG.
type DependencyCycleError struct{ Detail string }

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("taskboard: circular dependency detected: %s", e.Detail)
}

// UnknownDependencyError is returned by Publish when an edge points at an
// id that is neither in the batch nor already completed on the board.
type UnknownDependencyError struct{ TaskID, DependsOn string }

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("taskboard: %s depends on unknown task %s", e.TaskID, e.DependsOn)
}

// TaskBoard is the single source of truth for the sub-task DAG of one team.
// All mutating operations execute under one mutex; reads take a short
// critical section and return a snapshot rather than a live reference.
type TaskBoard struct {
	mu sync.Mutex

	entries      map[string]*models.TaskBoardEntry
	dependencies map[string]map[string]struct{} // taskID -> deps
	dependents   map[string]map[string]struct{} // taskID -> dependents (reverse index)
}

// New constructs an empty TaskBoard.
func New() *TaskBoard {
	return &TaskBoard{
		entries:      make(map[string]*models.TaskBoardEntry),
		dependencies: make(map[string]map[string]struct{}),
		dependents:   make(map[string]map[string]struct{}),
	}
}

// Publish registers all entries in one call (spec §4.1). On success the
// reverse-dependency index is rebuilt for the new edges only — it is never
// mutated independently of a Publish call (spec §9 design note).
func (b *TaskBoard) Publish(ctx context.Context, tasks []models.SubTask, dependencies map[string]map[string]struct{}) error {
	ctx, end := otelinit.WithSpan(ctx, "taskboard.publish")
	defer end()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.detectCycle(dependencies); err != nil {
		return err
	}

	for _, task := range tasks {
		deps := dependencies[task.ID]
		for depID := range deps {
			if _, known := b.entries[depID]; !known {
				if !containsTask(tasks, depID) {
					return &UnknownDependencyError{TaskID: task.ID, DependsOn: depID}
				}
			}
		}
	}

	for _, task := range tasks {
		deps := cloneSet(dependencies[task.ID])
		b.dependencies[task.ID] = deps
		for depID := range deps {
			if b.dependents[depID] == nil {
				b.dependents[depID] = make(map[string]struct{})
			}
			b.dependents[depID][task.ID] = struct{}{}
		}
	}

	for _, task := range tasks {
		deps := b.dependencies[task.ID]
		status := models.BoardPending
		for depID := range deps {
			entry, known := b.entries[depID]
			if !known || entry.Status != models.BoardCompleted {
				status = models.BoardBlocked
				break
			}
		}

		b.entries[task.ID] = &models.TaskBoardEntry{
			TaskID:       task.ID,
			SubTask:      task,
			Status:       status,
			Dependencies: cloneSet(deps),
			Priority:     task.Priority,
			RoleHint:     task.RoleHint,
		}
	}

	span := otel.SpanFromContext(ctx)
	span.SetAttributes(attribute.Int("taskboard.published_count", len(tasks)))
	return nil
}

func containsTask(tasks []models.SubTask, id string) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}

// detectCycle uses Kahn's algorithm over the union of existing completed
// nodes and the new batch's edges. Edges into completed nodes are valid
// (they cannot participate in a new cycle).
func (b *TaskBoard) detectCycle(dependencies map[string]map[string]struct{}) error {
	allNodes := make(map[string]struct{})
	for node, deps := range dependencies {
		allNodes[node] = struct{}{}
		for dep := range deps {
			allNodes[dep] = struct{}{}
		}
	}

	inDegree := make(map[string]int, len(allNodes))
	adj := make(map[string]map[string]struct{}, len(allNodes))
	for node := range allNodes {
		inDegree[node] = 0
		adj[node] = make(map[string]struct{})
	}

	for node, deps := range dependencies {
		for dep := range deps {
			if _, ok := adj[dep][node]; !ok {
				adj[dep][node] = struct{}{}
				inDegree[node]++
			}
		}
	}

	queue := make([]string, 0, len(allNodes))
	for node, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, node)
		}
	}
	sort.Strings(queue)

	visited := 0
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		visited++
		for neighbor := range adj[current] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if visited < len(allNodes) {
		return &DependencyCycleError{Detail: fmt.Sprintf("%d of %d nodes unresolved", len(allNodes)-visited, len(allNodes))}
	}
	return nil
}

// Claim atomically transitions pending -> claimed. Exactly one concurrent
// claim attempt for the same id succeeds; the mutex held for the whole
// method body guarantees that (spec §4.1, §8 invariant on claimedBy).
func (b *TaskBoard) Claim(ctx context.Context, agentID, taskID string) models.ClaimResult {
	_, end := otelinit.WithSpan(ctx, "taskboard.claim")
	defer end()

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[taskID]
	if !ok {
		return models.ClaimResult{Success: false, TaskID: taskID, Error: "task not found"}
	}
	if entry.Status == models.BoardClaimed {
		return models.ClaimResult{Success: false, TaskID: taskID, Error: "task already claimed"}
	}
	if entry.Status != models.BoardPending {
		return models.ClaimResult{Success: false, TaskID: taskID, Error: "task not in pending state"}
	}

	now := time.Now()
	entry.Status = models.BoardClaimed
	entry.ClaimedBy = agentID
	entry.ClaimedAt = &now

	return models.ClaimResult{Success: true, TaskID: taskID}
}

// GetAvailable returns a snapshot of pending entries, optionally filtered
// by roleHint, sorted by priority descending.
func (b *TaskBoard) GetAvailable(ctx context.Context, agentID string, roleFilter string) []models.TaskBoardEntry {
	_, end := otelinit.WithSpan(ctx, "taskboard.get_available")
	defer end()

	b.mu.Lock()
	defer b.mu.Unlock()

	available := make([]models.TaskBoardEntry, 0)
	for _, entry := range b.entries {
		if entry.Status != models.BoardPending {
			continue
		}
		if roleFilter != "" && entry.RoleHint != roleFilter {
			continue
		}
		available = append(available, *entry)
	}

	sort.SliceStable(available, func(i, j int) bool {
		return available[i].Priority > available[j].Priority
	})
	return available
}

// UpdateStatus applies a single transition, stamping StartedAt/CompletedAt
// as appropriate.
func (b *TaskBoard) UpdateStatus(ctx context.Context, taskID string, status models.TaskBoardStatus, result any) {
	_, end := otelinit.WithSpan(ctx, "taskboard.update_status")
	defer end()

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[taskID]
	if !ok {
		return
	}
	entry.Status = status
	if result != nil {
		entry.Result = result
	}

	now := time.Now()
	switch status {
	case models.BoardInProgress:
		entry.StartedAt = &now
	case models.BoardCompleted, models.BoardFailed:
		entry.CompletedAt = &now
	}
}

// ErrNotFound is returned by GetStatus for an unknown task id.
type ErrNotFound struct{ TaskID string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("taskboard: task not found: %s", e.TaskID) }

// GetStatus returns the current entry for taskID.
func (b *TaskBoard) GetStatus(ctx context.Context, taskID string) (models.TaskBoardEntry, error) {
	_, end := otelinit.WithSpan(ctx, "taskboard.get_status")
	defer end()

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.entries[taskID]
	if !ok {
		return models.TaskBoardEntry{}, &ErrNotFound{TaskID: taskID}
	}
	return *entry, nil
}

// OnCompleted must be called after a successful transition to Completed.
// It unlocks every direct dependent whose dependencies are now all
// completed, flipping blocked -> pending, and returns their ids.
func (b *TaskBoard) OnCompleted(ctx context.Context, taskID string) []string {
	_, end := otelinit.WithSpan(ctx, "taskboard.on_completed")
	defer end()

	b.mu.Lock()
	defer b.mu.Unlock()

	unlocked := make([]string, 0)
	for depID := range b.dependents[taskID] {
		entry, ok := b.entries[depID]
		if !ok || entry.Status != models.BoardBlocked {
			continue
		}

		allDepsCompleted := true
		for requiredDep := range b.dependencies[depID] {
			reqEntry, known := b.entries[requiredDep]
			if !known || reqEntry.Status != models.BoardCompleted {
				allDepsCompleted = false
				break
			}
		}

		if allDepsCompleted {
			entry.Status = models.BoardPending
			unlocked = append(unlocked, depID)
		}
	}
	sort.Strings(unlocked)
	return unlocked
}

// ReclaimExpired reverts claimed-but-never-started entries whose claim age
// exceeds timeout back to pending, so another agent can claim them.
func (b *TaskBoard) ReclaimExpired(ctx context.Context, timeout time.Duration) []string {
	_, end := otelinit.WithSpan(ctx, "taskboard.reclaim_expired")
	defer end()

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	reclaimed := make([]string, 0)
	for taskID, entry := range b.entries {
		if entry.Status != models.BoardClaimed {
			continue
		}
		if entry.StartedAt != nil {
			continue
		}
		if entry.ClaimedAt != nil && now.Sub(*entry.ClaimedAt) > timeout {
			entry.Status = models.BoardPending
			entry.ClaimedBy = ""
			entry.ClaimedAt = nil
			reclaimed = append(reclaimed, taskID)
		}
	}
	sort.Strings(reclaimed)
	return reclaimed
}

// Dependents returns a snapshot of the reverse-dependency set for taskID,
// used by the WaveExecutor's BFS failure propagation.
func (b *TaskBoard) Dependents(taskID string) map[string]struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return cloneSet(b.dependents[taskID])
}

// Has reports whether taskID is already a known entry on the board.
func (b *TaskBoard) Has(taskID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[taskID]
	return ok
}

// Len returns the total number of entries on the board.
func (b *TaskBoard) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// CountByStatus returns a snapshot count of entries in the given status.
func (b *TaskBoard) CountByStatus(status models.TaskBoardStatus) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, entry := range b.entries {
		if entry.Status == status {
			n++
		}
	}
	return n
}

func cloneSet(src map[string]struct{}) map[string]struct{} {
	dst := make(map[string]struct{}, len(src))
	for k := range src {
		dst[k] = struct{}{}
	}
	return dst
}
