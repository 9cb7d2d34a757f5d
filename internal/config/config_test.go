package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "ariadne" {
		t.Errorf("expected Name=ariadne, got %s", cfg.Name)
	}
	if cfg.Ambient.File != filepath.Join(DirName, "context.md") {
		t.Errorf("unexpected ambient file: %s", cfg.Ambient.File)
	}
	if cfg.Dispatch.AdvisoryThreshold != 25 {
		t.Errorf("expected AdvisoryThreshold=25, got %d", cfg.Dispatch.AdvisoryThreshold)
	}
	if !cfg.Journal.Enabled {
		t.Error("journal should be enabled by default")
	}
	if cfg.Knowledge.Enabled {
		t.Error("knowledge graph should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("ARIADNE_KNOWLEDGE_COMMAND", "")
	t.Setenv("ARIADNE_LOG_LEVEL", "")

	workspace := t.TempDir()

	cfg := DefaultConfig()
	cfg.Dispatch.Timeout = "10s"
	cfg.Knowledge.Enabled = true
	cfg.Knowledge.Command = "memory-server --stdio"

	if err := cfg.Save(workspace); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(workspace)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Dispatch.Timeout != "10s" {
		t.Errorf("expected Timeout=10s, got %s", loaded.Dispatch.Timeout)
	}
	if loaded.DispatchTimeout() != 10*time.Second {
		t.Errorf("expected parsed timeout 10s, got %v", loaded.DispatchTimeout())
	}
	if !loaded.Knowledge.Enabled || loaded.Knowledge.Command != "memory-server --stdio" {
		t.Errorf("knowledge settings did not round-trip: %+v", loaded.Knowledge)
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("ARIADNE_KNOWLEDGE_COMMAND", "")
	t.Setenv("ARIADNE_LOG_LEVEL", "")

	workspace := t.TempDir()
	cfg, err := Load(workspace)
	if err != nil {
		t.Fatalf("Load of empty workspace failed: %v", err)
	}
	if cfg.Name != "ariadne" {
		t.Errorf("expected defaults, got Name=%s", cfg.Name)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	workspace := t.TempDir()
	if err := os.MkdirAll(filepath.Join(workspace, DirName), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(Path(workspace), []byte("dispatch: [not: a: mapping"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(workspace); err == nil {
		t.Error("expected parse error for malformed config")
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ARIADNE_KNOWLEDGE_COMMAND", "graph-server")
	t.Setenv("ARIADNE_LOG_LEVEL", "debug")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Knowledge.Command != "graph-server" {
		t.Errorf("expected Command=graph-server, got %s", cfg.Knowledge.Command)
	}
	if !cfg.Knowledge.Enabled {
		t.Error("env command override should enable the knowledge graph")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected Level=debug, got %s", cfg.Logging.Level)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults pass", func(c *Config) {}, false},
		{"empty ambient file", func(c *Config) { c.Ambient.File = "" }, true},
		{"empty checkpoint dir", func(c *Config) { c.Checkpoints.Dir = "" }, true},
		{"bad dispatch timeout", func(c *Config) { c.Dispatch.Timeout = "soon" }, true},
		{"bad source timeout", func(c *Config) { c.Resume.SourceTimeout = "-" }, true},
		{"zero advisory threshold", func(c *Config) { c.Dispatch.AdvisoryThreshold = 0 }, true},
		{"knowledge enabled without command", func(c *Config) { c.Knowledge.Enabled = true }, true},
		{"journal enabled without path", func(c *Config) { c.Journal.Path = "" }, true},
		{"invalid log level", func(c *Config) { c.Logging.Level = "loud" }, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("expected valid config, got: %v", err)
			}
		})
	}
}
