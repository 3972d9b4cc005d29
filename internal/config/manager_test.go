package config

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return &Manager{configDir: filepath.Join(t.TempDir(), "parley")}
}

func TestLoadMissingFile(t *testing.T) {
	manager := newTestManager(t)

	cfg, err := manager.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *cfg != (Config{}) {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	manager := newTestManager(t)

	want := &Config{
		Provider:     "anthropic",
		APIKey:       "sk-ant-test",
		Model:        "claude-3-5-sonnet-20241022",
		SearchAPIKey: "tvly-test",
	}
	if err := manager.Save(want); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	info, err := os.Stat(manager.GetConfigPath())
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file should be 0600, got %o", perm)
	}

	got, err := manager.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if *got != *want {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	manager := newTestManager(t)
	if err := os.MkdirAll(manager.configDir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(manager.GetConfigPath(), []byte("{not json"), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := manager.Load(); err == nil {
		t.Fatalf("expected an error for invalid JSON")
	}
}

func TestApplyEnvOpenAI(t *testing.T) {
	t.Setenv("PARLEY_PROVIDER", "")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("OPENAI_BASE_URL", "https://proxy.example/v1")
	t.Setenv("TAVILY_API_KEY", "tvly-env")

	cfg := &Config{APIKey: "sk-file", Model: "gpt-4o-mini"}
	cfg.ApplyEnv()

	if cfg.APIKey != "sk-env" {
		t.Errorf("environment should win over the file, got %q", cfg.APIKey)
	}
	if cfg.Model != "gpt-4o" || cfg.BaseURL != "https://proxy.example/v1" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.SearchAPIKey != "tvly-env" {
		t.Errorf("search key not applied: %q", cfg.SearchAPIKey)
	}
}

func TestApplyEnvAnthropic(t *testing.T) {
	t.Setenv("PARLEY_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	t.Setenv("OPENAI_API_KEY", "sk-openai-env")

	cfg := &Config{}
	cfg.ApplyEnv()

	if cfg.Provider != "anthropic" {
		t.Errorf("provider not applied: %q", cfg.Provider)
	}
	if cfg.APIKey != "sk-ant-env" {
		t.Errorf("expected the anthropic key, got %q", cfg.APIKey)
	}
}

func TestApplyEnvKeepsFileValues(t *testing.T) {
	t.Setenv("PARLEY_PROVIDER", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("OPENAI_BASE_URL", "")
	t.Setenv("TAVILY_API_KEY", "")

	cfg := &Config{Provider: "openai", APIKey: "sk-file", Model: "gpt-4o-mini"}
	cfg.ApplyEnv()

	if cfg.APIKey != "sk-file" || cfg.Model != "gpt-4o-mini" {
		t.Errorf("empty environment must not clobber file values: %+v", cfg)
	}
}
