// Package llmconfig defines the closed LLM configuration struct used by
// agent roles, grounded in spec §9's design note: "define a closed
// configuration struct with explicitly enumerated fields" rather than the
// original's runtime-typed config maps. The shape mirrors the client
// configs seen across the example pack's LLM-touching repos
// (activebook-gllm, NeboLoop-nebo) without depending on any concrete SDK —
// the LLM client itself remains an external collaborator per spec §1.
package llmconfig

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Model is a closed enum of model identifiers. Unknown values are rejected
// at decode time rather than silently accepted as free-form strings.
type Model string

const (
	ModelDefault  Model = "default"
	ModelFast     Model = "fast"
	ModelThinking Model = "thinking"
)

func (m Model) valid() bool {
	switch m {
	case ModelDefault, ModelFast, ModelThinking:
		return true
	default:
		return false
	}
}

// Config is the closed LLM configuration attached to a Role. Fields are
// explicitly enumerated; there is no passthrough map, so an unrecognized
// JSON key at the plan boundary is a decode error rather than silently
// ignored configuration.
type Config struct {
	Model        Model   `json:"model"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	EnableSearch bool    `json:"enable_search"`
	Thinking     bool    `json:"thinking"`
}

// Default returns a conservative baseline configuration.
func Default() Config {
	return Config{
		Model:       ModelDefault,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// Validate enforces the closed-struct contract: the model must be one of
// the known enum values and numeric fields must be in sane ranges.
func (c Config) Validate() error {
	if !c.Model.valid() {
		return fmt.Errorf("llmconfig: unknown model %q", c.Model)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("llmconfig: temperature %v out of range [0,2]", c.Temperature)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("llmconfig: max_tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}

// ParseStrict decodes a Config from JSON, rejecting unknown fields — the
// plan-boundary validation spec §9 calls for.
func ParseStrict(data []byte) (Config, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var c Config
	if err := dec.Decode(&c); err != nil {
		return Config{}, fmt.Errorf("llmconfig: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
