package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DirName is the per-workspace state directory.
const DirName = ".ariadne"

// Config holds all ariadne configuration. All paths are relative to the
// workspace root; call sites join them against the resolved workspace.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Tier 1: the ambient context document
	Ambient AmbientConfig `yaml:"ambient"`

	// Tier 2: immutable checkpoint files
	Checkpoints CheckpointConfig `yaml:"checkpoints"`

	// Tier 3: external knowledge graph server
	Knowledge KnowledgeConfig `yaml:"knowledge"`

	// Trigger dispatch settings
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Resume synthesis settings
	Resume ResumeConfig `yaml:"resume"`

	// Local dispatch journal
	Journal JournalConfig `yaml:"journal"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// AmbientConfig configures the Tier-1 ambient state document.
type AmbientConfig struct {
	// File is the ambient document path. The store owns only the
	// "## Working State" section inside it.
	File string `yaml:"file"`
}

// CheckpointConfig configures the Tier-2 checkpoint store.
type CheckpointConfig struct {
	Dir string `yaml:"dir"`
}

// KnowledgeConfig configures the external knowledge graph server.
// The server is spawned as a subprocess and spoken to over stdio.
type KnowledgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Command string `yaml:"command"` // e.g. "npx -y @modelcontextprotocol/server-memory"
	Timeout string `yaml:"timeout"`
}

// DispatchConfig configures trigger handling.
type DispatchConfig struct {
	// Timeout is the hard wall-clock ceiling for one event dispatch.
	Timeout string `yaml:"timeout"`

	// AdvisoryThreshold is the tool-call count at which an advisory
	// event starts suggesting a checkpoint.
	AdvisoryThreshold int `yaml:"advisory_threshold"`
}

// ResumeConfig configures briefing synthesis.
type ResumeConfig struct {
	// SourceTimeout caps each collaborator query independently so one
	// slow source cannot stall the whole resume.
	SourceTimeout string `yaml:"source_timeout"`
}

// JournalConfig configures the local dispatch journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	Dir   string `yaml:"dir"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "ariadne",
		Version: "1.0.0",
		Ambient: AmbientConfig{
			File: filepath.Join(DirName, "context.md"),
		},
		Checkpoints: CheckpointConfig{
			Dir: filepath.Join(DirName, "checkpoints"),
		},
		Knowledge: KnowledgeConfig{
			Enabled: false,
			Command: "",
			Timeout: "3s",
		},
		Dispatch: DispatchConfig{
			Timeout:           "5s",
			AdvisoryThreshold: 25,
		},
		Resume: ResumeConfig{
			SourceTimeout: "3s",
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    filepath.Join(DirName, "journal.db"),
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   filepath.Join(DirName, "logs"),
		},
	}
}

// Path returns the config file location for a workspace.
func Path(workspace string) string {
	return filepath.Join(workspace, DirName, "config.yaml")
}

// Load reads configuration for the given workspace, applying defaults
// for anything unset. A missing config file is not an error.
func Load(workspace string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes configuration to the workspace config path.
func (c *Config) Save(workspace string) error {
	path := Path(workspace)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if cmd := os.Getenv("ARIADNE_KNOWLEDGE_COMMAND"); cmd != "" {
		c.Knowledge.Command = cmd
		c.Knowledge.Enabled = true
	}
	if level := os.Getenv("ARIADNE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// DispatchTimeout returns the parsed dispatch ceiling.
func (c *Config) DispatchTimeout() time.Duration {
	d, err := time.ParseDuration(c.Dispatch.Timeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// SourceTimeout returns the parsed per-source resume budget.
func (c *Config) SourceTimeout() time.Duration {
	d, err := time.ParseDuration(c.Resume.SourceTimeout)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// KnowledgeTimeout returns the parsed knowledge-graph call budget.
func (c *Config) KnowledgeTimeout() time.Duration {
	d, err := time.ParseDuration(c.Knowledge.Timeout)
	if err != nil {
		return 3 * time.Second
	}
	return d
}

// resolvePath joins p under workspace unless p is already absolute.
func resolvePath(workspace, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspace, p)
}

// AmbientPath returns the ambient document location for a workspace.
func (c *Config) AmbientPath(workspace string) string {
	return resolvePath(workspace, c.Ambient.File)
}

// CheckpointDir returns the checkpoint directory for a workspace.
func (c *Config) CheckpointDir(workspace string) string {
	return resolvePath(workspace, c.Checkpoints.Dir)
}

// JournalPath returns the dispatch journal location for a workspace.
func (c *Config) JournalPath(workspace string) string {
	return resolvePath(workspace, c.Journal.Path)
}

// LogDir returns the log directory for a workspace.
func (c *Config) LogDir(workspace string) string {
	return resolvePath(workspace, c.Logging.Dir)
}

var validLevels = []string{"debug", "info", "warn", "error"}

// Validate checks the configuration for setup-time errors. This is the
// only place a config problem is allowed to be fatal.
func (c *Config) Validate() error {
	if c.Ambient.File == "" {
		return fmt.Errorf("ambient.file must not be empty")
	}
	if c.Checkpoints.Dir == "" {
		return fmt.Errorf("checkpoints.dir must not be empty")
	}
	if _, err := time.ParseDuration(c.Dispatch.Timeout); err != nil {
		return fmt.Errorf("dispatch.timeout is not a duration: %w", err)
	}
	if _, err := time.ParseDuration(c.Resume.SourceTimeout); err != nil {
		return fmt.Errorf("resume.source_timeout is not a duration: %w", err)
	}
	if c.Dispatch.AdvisoryThreshold <= 0 {
		return fmt.Errorf("dispatch.advisory_threshold must be positive, got %d", c.Dispatch.AdvisoryThreshold)
	}
	if c.Knowledge.Enabled && strings.TrimSpace(c.Knowledge.Command) == "" {
		return fmt.Errorf("knowledge.enabled is set but knowledge.command is empty")
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return fmt.Errorf("journal.enabled is set but journal.path is empty")
	}
	valid := false
	for _, l := range validLevels {
		if c.Logging.Level == l {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("logging.level must be one of %v, got %q", validLevels, c.Logging.Level)
	}
	return nil
}
