package models

import "time"

// ToolCallRecord is an opaque record of one tool invocation made by an
// AgentRoleRunner. The orchestration core never interprets its contents;
// it only threads the record through to SubTaskResult/TaskResult.
type ToolCallRecord struct {
	ID        string
	ToolName  string
	Arguments map[string]any
	Result    any
	Success   bool
	Error     string
	StartedAt time.Time
	EndedAt   time.Time
	AgentID   string
}

// SubTaskResult is what an AgentRoleRunner returns for one SubTask.
type SubTaskResult struct {
	SubTaskID     string
	AgentID       string
	Success       bool
	Output        string
	Error         string
	ToolCalls     []ToolCallRecord
	ExecutionTime time.Duration
	TokenUsage    map[string]int
	OutputType    string
}

// TaskResult is the terminal outcome of one Task. MainAgent's
// ExecuteWithTimeout and ConfirmAndExecute report every failure through
// one of these; ExecuteTask returns an empty TaskResult and a Go error
// when planning fails.
type TaskResult struct {
	TaskID        string
	Success       bool
	Output        string
	Error         string
	ExecutionTime time.Duration
	SubResults    []SubTaskResult
	OutputType    string
	Metadata      map[string]any
}
