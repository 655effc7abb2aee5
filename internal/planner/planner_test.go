package planner

import "testing"

func TestToSubTasksConvertsStepsAndDependencies(t *testing.T) {
	flow := ExecutionFlow{
		Steps: []Step{
			{StepID: "s1", StepNumber: 1, Name: "research", Description: "gather sources", AgentType: "researcher"},
			{StepID: "s2", StepNumber: 2, Name: "write", Description: "draft summary", AgentType: "writer", Dependencies: []string{"s1"}},
		},
	}

	subtasks, deps := ToSubTasks("task-1", flow)
	if len(subtasks) != 2 {
		t.Fatalf("expected 2 subtasks, got %d", len(subtasks))
	}

	byID := make(map[string]int)
	for i, st := range subtasks {
		byID[st.ID] = i
		if st.ParentTaskID != "task-1" {
			t.Fatalf("expected parent task id propagated, got %q", st.ParentTaskID)
		}
	}

	s1 := subtasks[byID["s1"]]
	if s1.Content != "gather sources" || s1.RoleHint != "researcher" || s1.Priority != 1 {
		t.Fatalf("unexpected s1 conversion: %+v", s1)
	}
	if len(s1.Dependencies) != 0 {
		t.Fatalf("expected s1 to have no dependencies, got %v", s1.Dependencies)
	}

	s2 := subtasks[byID["s2"]]
	if _, ok := s2.Dependencies["s1"]; !ok {
		t.Fatalf("expected s2 to depend on s1, got %v", s2.Dependencies)
	}

	if _, ok := deps["s2"]["s1"]; !ok {
		t.Fatalf("expected deps map to mirror s2's dependency on s1, got %v", deps["s2"])
	}
	if len(deps["s1"]) != 0 {
		t.Fatalf("expected s1's dep set empty, got %v", deps["s1"])
	}
}

func TestToSubTasksHandlesEmptyFlow(t *testing.T) {
	subtasks, deps := ToSubTasks("task-1", ExecutionFlow{})
	if len(subtasks) != 0 || len(deps) != 0 {
		t.Fatalf("expected empty conversion for empty flow, got %d subtasks, %d deps", len(subtasks), len(deps))
	}
}
