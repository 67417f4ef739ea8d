package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromEnv_ProviderSelection(t *testing.T) {
	t.Setenv("AGENT_MODEL_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("AGENT_MODEL", "claude-test")
	t.Setenv("AGENT_SERVER_PORT", "8815")

	cfg := FromEnv()
	if cfg.Provider.Name != "anthropic" {
		t.Errorf("provider = %q", cfg.Provider.Name)
	}
	if cfg.Provider.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.Provider.APIKey)
	}
	if cfg.Provider.Model != "claude-test" {
		t.Errorf("model = %q", cfg.Provider.Model)
	}
	if cfg.Server.Addr != "127.0.0.1:8815" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
}

func TestFromEnv_GoogleAliasesAndGeminiKey(t *testing.T) {
	t.Setenv("AGENT_MODEL_PROVIDER", "google")
	t.Setenv("GOOGLE_GENERATIVE_AI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "g-test")

	cfg := FromEnv()
	if cfg.Provider.Name != "gemini" {
		t.Errorf("provider = %q, want gemini", cfg.Provider.Name)
	}
	if cfg.Provider.APIKey != "g-test" {
		t.Errorf("api key = %q, want the GEMINI_API_KEY alias", cfg.Provider.APIKey)
	}
}

func TestFromEnv_MissingKeyLeavesProviderUnconfigured(t *testing.T) {
	t.Setenv("AGENT_MODEL_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "")

	cfg := FromEnv()
	if cfg.Provider.APIKey != "" {
		t.Errorf("api key = %q, want empty", cfg.Provider.APIKey)
	}
}

func TestLoad_YAMLWithEnvOverride(t *testing.T) {
	t.Setenv("AGENT_MODEL_PROVIDER", "")
	t.Setenv("AGENT_MODEL", "gpt-test")
	t.Setenv("OPENAI_API_KEY", "sk-file")
	t.Setenv("AGENT_SERVER_PORT", "")

	path := filepath.Join(t.TempDir(), "webpilot.yaml")
	data := []byte("server:\n  addr: \"127.0.0.1:9999\"\npolicy:\n  max_steps: 5\n  max_parallel_tasks: 3\nlog_level: debug\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Policy.MaxSteps != 5 || cfg.Policy.MaxParallelTasks != 3 {
		t.Errorf("policy = %+v", cfg.Policy)
	}
	if cfg.Provider.Model != "gpt-test" {
		t.Errorf("env model override lost: %q", cfg.Provider.Model)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %q", cfg.LogLevel)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

func TestPolicy_OriginBlocked(t *testing.T) {
	p := DefaultPolicy()
	blocked := []string{
		"chrome://settings",
		"file:///etc/passwd",
		"javascript:alert(1)",
		"data:text/html,hi",
		"about:blank",
	}
	for _, url := range blocked {
		if !p.OriginBlocked(url) {
			t.Errorf("OriginBlocked(%q) = false", url)
		}
	}
	for _, url := range []string{"https://example.com", "http://localhost:3000"} {
		if p.OriginBlocked(url) {
			t.Errorf("OriginBlocked(%q) = true", url)
		}
	}
}

func TestPolicy_SelectorRestricted(t *testing.T) {
	p := DefaultPolicy()
	if !p.SelectorRestricted(`input[type="password"]`) {
		t.Error("password input not restricted")
	}
	if p.SelectorRestricted("#search") {
		t.Error("#search should not be restricted")
	}
}

func TestPolicy_ClampWait(t *testing.T) {
	p := Policy{MaxWaitMs: 1000}
	tests := map[int]int{
		500:   500,
		1000:  1000,
		10000: 1000,
		0:     1000,
		-5:    1000,
	}
	for in, want := range tests {
		if got := p.ClampWait(in); got != want {
			t.Errorf("ClampWait(%d) = %d, want %d", in, got, want)
		}
	}
}
