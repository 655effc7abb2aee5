package agentrole

import "testing"

func TestResolveKnownRole(t *testing.T) {
	r := Resolve("researcher")
	if r.Name != "researcher" {
		t.Fatalf("expected researcher role, got %+v", r)
	}
	if len(r.AllowedTools) == 0 {
		t.Fatal("expected researcher to have allowed tools")
	}
}

func TestResolveUnknownHintFallsBackToDefault(t *testing.T) {
	r := Resolve("nonexistent-role")
	if r.Name != DefaultRoleName {
		t.Fatalf("expected fallback to default role, got %q", r.Name)
	}
}

func TestResolveEmptyHintFallsBackToDefault(t *testing.T) {
	r := Resolve("")
	if r.Name != DefaultRoleName {
		t.Fatalf("expected empty hint to resolve to default role, got %q", r.Name)
	}
}

func TestRegisterAddsCustomRole(t *testing.T) {
	Register(Role{Name: "custom-test-role", PromptTemplate: "custom: {{content}}"})
	r := Resolve("custom-test-role")
	if r.PromptTemplate != "custom: {{content}}" {
		t.Fatalf("expected registered role to be resolvable, got %+v", r)
	}
}

func TestRegisterOverwritesExistingRole(t *testing.T) {
	original := Resolve("writer")
	Register(Role{Name: "writer", PromptTemplate: "overwritten"})
	defer Register(original)

	r := Resolve("writer")
	if r.PromptTemplate != "overwritten" {
		t.Fatalf("expected overwrite to take effect, got %+v", r)
	}
}
