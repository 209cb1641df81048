package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the structured surface of config.yaml. Every section is
// optional; zero values fall back to defaults at wiring time.
type Config struct {
	LLM      LLMConfig              `yaml:"llm"`
	Agent    AgentConfig            `yaml:"agent"`
	Memory   MemoryConfig           `yaml:"memory"`
	SubAgent map[string]SubAgentCfg `yaml:"sub_agent"`
	MCP      MCPConfig              `yaml:"mcp"`
	Server   ServerConfig           `yaml:"server"`
}

type LLMConfig struct {
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxRetries  int     `yaml:"max_retries"`
}

type AgentConfig struct {
	MaxSteps         int    `yaml:"max_steps"`
	EffortLevel      string `yaml:"effort_level"` // low | medium | high
	HighEffortMode   bool   `yaml:"high_effort_mode"`
	EnableReflection bool   `yaml:"enable_reflection"`
	MaxObserve       int    `yaml:"max_observe"`
	ShellEnabled     bool   `yaml:"shell_enabled"`
	WorkspaceDir     string `yaml:"workspace_dir"`
}

type MemoryConfig struct {
	Enabled                   bool   `yaml:"enabled"`
	DBPath                    string `yaml:"db_path"`
	CompactionThresholdTokens int    `yaml:"compaction_threshold_tokens"`
	Strategy                  string `yaml:"strategy"` // simple | summarize | composite
}

type SubAgentCfg struct {
	MaxSteps int `yaml:"max_steps"`
}

type MCPConfig struct {
	ConfigPath string `yaml:"config_path"` // mcp.json server map
}

type ServerConfig struct {
	Port       string `yaml:"port"`
	LogDir     string `yaml:"log_dir"`
	SessionTTL string `yaml:"session_ttl"` // Go duration, e.g. "30m"
}

// Default returns the configuration used when no config.yaml exists.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxRetries:  3,
		},
		Agent: AgentConfig{
			MaxSteps:     20,
			EffortLevel:  "medium",
			MaxObserve:   10000,
			ShellEnabled: true,
			WorkspaceDir: "workspace",
		},
		Memory: MemoryConfig{
			Enabled:                   true,
			DBPath:                    "memory.db",
			CompactionThresholdTokens: 100000,
			Strategy:                  "simple",
		},
		Server: ServerConfig{
			Port:       "8080",
			LogDir:     "logs",
			SessionTTL: "30m",
		},
	}
}

// Load reads config.yaml from path, layered over Default. A missing
// file is not an error; a malformed one is fatal to startup.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Agent.EffortLevel {
	case "", "low", "medium", "high":
	default:
		return fmt.Errorf("config: unknown agent.effort_level %q", c.Agent.EffortLevel)
	}
	switch c.Memory.Strategy {
	case "", "simple", "summarize", "composite":
	default:
		return fmt.Errorf("config: unknown memory.strategy %q", c.Memory.Strategy)
	}
	return nil
}
