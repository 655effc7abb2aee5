// Package models holds the core orchestration-core data types shared
// across TaskBoard, WaveExecutor, TeamLifecycleManager, TaskExecutor, and
// MainAgent. Cross-component references are by id, never by pointer.
package models

import "time"

// TaskStatus is the status of a user-submitted Task. Transitions are
// monotonic: no backward transitions except cancellation from any
// non-terminal state.
type TaskStatus string

const (
	TaskPending     TaskStatus = "pending"
	TaskAnalyzing   TaskStatus = "analyzing"
	TaskDecomposing TaskStatus = "decomposing"
	TaskExecuting   TaskStatus = "executing"
	TaskAggregating TaskStatus = "aggregating"
	TaskCompleted   TaskStatus = "completed"
	TaskFailed      TaskStatus = "failed"
	TaskCancelled   TaskStatus = "cancelled"
)

// IsTerminal reports whether a Task in this status can no longer transition.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled:
		return true
	default:
		return false
	}
}

// Task is one user submission, owned by MainAgent for its whole lifetime.
type Task struct {
	ID               string
	Content          string
	Status           TaskStatus
	ComplexityScore  float64
	CreatedAt        time.Time
	Metadata         map[string]any
}

// SubTask is one node of the execution DAG. It is immutable after creation.
type SubTask struct {
	ID                  string
	ParentTaskID        string
	Content             string
	RoleHint            string
	Dependencies        map[string]struct{}
	Priority            int
	EstimatedComplexity float64
}

// DependencyList returns the SubTask's dependencies as a slice, in no
// particular order; callers that need determinism should sort it.
func (s SubTask) DependencyList() []string {
	out := make([]string, 0, len(s.Dependencies))
	for id := range s.Dependencies {
		out = append(out, id)
	}
	return out
}

// TaskDecomposition is the result of decomposing one Task into an ordered
// DAG of SubTasks.
type TaskDecomposition struct {
	OriginalTaskID       string
	Subtasks             []SubTask
	ExecutionOrder       [][]string
	TotalEstimatedTime   time.Duration
}
