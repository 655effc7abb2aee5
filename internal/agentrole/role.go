// Package agentrole implements spec §9's redesign of the original's
// dynamic, string-keyed role dispatch: a static registry mapping role
// names to Role values (identifier, prompt template, allowed tool set,
// model config), rather than runtime lookups into a loosely-typed map.
package agentrole

import "github.com/swarmguard/agentcore/internal/llmconfig"

// Role names a persona an AgentRoleRunner can assume for one SubTask. The
// registry resolves a SubTask.RoleHint string to one of these.
type Role struct {
	Name           string
	PromptTemplate string
	AllowedTools   []string
	ModelConfig    llmconfig.Config
}

// DefaultRoleName is used when a role hint does not match any registered
// role.
const DefaultRoleName = "general"

var registry = map[string]Role{
	"researcher": {
		Name:           "researcher",
		PromptTemplate: "You are a research agent. Investigate: {{content}}",
		AllowedTools:   []string{"web_search", "read_file"},
		ModelConfig:    llmconfig.Default(),
	},
	"analyzer": {
		Name:           "analyzer",
		PromptTemplate: "You are an analysis agent. Analyze: {{content}}",
		AllowedTools:   []string{"read_file"},
		ModelConfig:    llmconfig.Config{Model: llmconfig.ModelThinking, Temperature: 0.3, MaxTokens: 8192, Thinking: true},
	},
	"writer": {
		Name:           "writer",
		PromptTemplate: "You are a writing agent. Produce: {{content}}",
		AllowedTools:   []string{},
		ModelConfig:    llmconfig.Config{Model: llmconfig.ModelDefault, Temperature: 0.8, MaxTokens: 4096},
	},
	"summarizer": {
		Name:           "summarizer",
		PromptTemplate: "You are a summarization agent. Summarize: {{content}}",
		AllowedTools:   []string{},
		ModelConfig:    llmconfig.Config{Model: llmconfig.ModelFast, Temperature: 0.2, MaxTokens: 2048},
	},
	"coder": {
		Name:           "coder",
		PromptTemplate: "You are a coding agent. Implement: {{content}}",
		AllowedTools:   []string{"read_file", "write_file", "run_shell"},
		ModelConfig:    llmconfig.Config{Model: llmconfig.ModelThinking, Temperature: 0.1, MaxTokens: 8192, Thinking: true},
	},
	DefaultRoleName: {
		Name:           DefaultRoleName,
		PromptTemplate: "You are a general-purpose agent. Handle: {{content}}",
		AllowedTools:   []string{"web_search", "read_file"},
		ModelConfig:    llmconfig.Default(),
	},
}

// Resolve maps a SubTask.RoleHint to a concrete Role, falling back to the
// default role for unknown hints — the registry never returns an error.
func Resolve(hint string) Role {
	if role, ok := registry[hint]; ok {
		return role
	}
	return registry[DefaultRoleName]
}

// Register adds or replaces a role in the static registry. Intended for
// process start-up wiring (e.g. a deployment with custom personas), not
// for per-task mutation.
func Register(r Role) {
	registry[r.Name] = r
}
