package llmconfig

import "testing"

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("expected default config to validate, got %v", err)
	}
}

func TestValidateRejectsUnknownModel(t *testing.T) {
	c := Config{Model: "nonexistent", Temperature: 0.5, MaxTokens: 100}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for unknown model")
	}
}

func TestValidateRejectsTemperatureOutOfRange(t *testing.T) {
	c := Config{Model: ModelDefault, Temperature: 2.5, MaxTokens: 100}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for temperature above range")
	}
	c.Temperature = -0.1
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for negative temperature")
	}
}

func TestValidateRejectsNonPositiveMaxTokens(t *testing.T) {
	c := Config{Model: ModelDefault, Temperature: 0.5, MaxTokens: 0}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for zero max_tokens")
	}
}

func TestParseStrictRejectsUnknownFields(t *testing.T) {
	data := []byte(`{"model":"default","temperature":0.5,"max_tokens":100,"unknown_field":true}`)
	if _, err := ParseStrict(data); err == nil {
		t.Fatal("expected error for unknown JSON field")
	}
}

func TestParseStrictAcceptsWellFormedConfig(t *testing.T) {
	data := []byte(`{"model":"thinking","temperature":0.3,"max_tokens":8192,"thinking":true}`)
	c, err := ParseStrict(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Model != ModelThinking || !c.Thinking || c.MaxTokens != 8192 {
		t.Fatalf("unexpected parsed config: %+v", c)
	}
}

func TestParseStrictRejectsInvalidConfigValues(t *testing.T) {
	data := []byte(`{"model":"default","temperature":5,"max_tokens":100}`)
	if _, err := ParseStrict(data); err == nil {
		t.Fatal("expected validation error to surface through ParseStrict")
	}
}
