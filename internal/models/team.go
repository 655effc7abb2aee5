package models

import "time"

// TeamState is the lifecycle state machine owned by TeamLifecycleManager:
// creating → ready → executing → completed → disbanded.
type TeamState string

const (
	TeamCreating  TeamState = "creating"
	TeamReady     TeamState = "ready"
	TeamExecuting TeamState = "executing"
	TeamCompleted TeamState = "completed"
	TeamDisbanded TeamState = "disbanded"
)

// TeamConfig bounds a team's resource usage. Closed struct per spec §9 —
// no map[string]any passthrough.
type TeamConfig struct {
	MaxAgents           int
	AgentTimeout        time.Duration
	ClaimTimeout        time.Duration
	EnableP2PMessaging  bool
	EnableSelfClaiming  bool
}

// DefaultTeamConfig mirrors the original's dataclass defaults.
func DefaultTeamConfig() TeamConfig {
	return TeamConfig{
		MaxAgents:          20,
		AgentTimeout:       300 * time.Second,
		ClaimTimeout:       60 * time.Second,
		EnableP2PMessaging: true,
		EnableSelfClaiming: true,
	}
}

// Team is the ephemeral unit of isolation owned by TeamLifecycleManager:
// one task, one TaskBoard, one MessageBus, one set of agent identities.
type Team struct {
	ID          string
	TaskID      string
	State       TeamState
	Config      TeamConfig
	Members     map[string]string // agentID -> role name
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// DisbandResult is returned by TeamLifecycleManager.DisbandTeam.
type DisbandResult struct {
	TeamID                string
	Success               bool
	TerminatedAgents      int
	ForceTerminatedAgents int
	Errors                []string
}

// TaskBoardStatus is the per-entry state machine maintained by TaskBoard.
type TaskBoardStatus string

const (
	BoardBlocked    TaskBoardStatus = "blocked"
	BoardPending    TaskBoardStatus = "pending"
	BoardClaimed    TaskBoardStatus = "claimed"
	BoardInProgress TaskBoardStatus = "in_progress"
	BoardCompleted  TaskBoardStatus = "completed"
	BoardFailed     TaskBoardStatus = "failed"
)

// TaskBoardEntry is the mutable per-sub-task state kept inside a TaskBoard.
type TaskBoardEntry struct {
	TaskID       string
	SubTask      SubTask
	Status       TaskBoardStatus
	ClaimedBy    string
	ClaimedAt    *time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Result       any
	Dependencies map[string]struct{}
	Priority     int
	RoleHint     string
}

// ClaimResult is returned by TaskBoard.Claim.
type ClaimResult struct {
	Success bool
	TaskID  string
	Error   string
}

// WaveStats is telemetry only; it has no control-flow role.
type WaveStats struct {
	WaveNumber      int
	TaskCount       int
	Parallelism     int
	StartTime       time.Time
	EndTime         time.Time
	CompletedTasks  int
	FailedTasks     int
}

// WaveExecutionResult is returned by WaveExecutor.Execute.
type WaveExecutionResult struct {
	TotalWaves        int
	TotalTasks        int
	CompletedTasks    int
	FailedTasks       int
	BlockedTasks      int
	WaveStats         []WaveStats
	TotalExecutionTime time.Duration
}

// PlanStatus is the lifecycle state of an ExecutionPlan, as confirmed or
// revised by a caller before execution.
type PlanStatus string

const (
	PlanDraft     PlanStatus = "draft"
	PlanConfirmed PlanStatus = "confirmed"
	PlanRejected  PlanStatus = "rejected"
	PlanRevised   PlanStatus = "revised"
)

// ExecutionPlan is the Planner contract's output (spec §6): refined task
// plus an ordered, dependency-annotated set of SubTasks.
type ExecutionPlan struct {
	TaskID                   string
	Subtasks                 []SubTask
	DependencyGraph          map[string]map[string]struct{}
	AgentAssignments         map[string]string
	EstimatedTokenUsage      int
	EstimatedExecutionTime   time.Duration
	WavePreview              [][]string
	CreatedAt                time.Time
	Status                   PlanStatus
}
