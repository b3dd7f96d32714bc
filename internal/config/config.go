// Package config loads sqlpilot settings from a JSON file and SQLPILOT_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
)

// Config represents the main sqlpilot configuration
type Config struct {
	// AI providers
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Agent behaviour
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Database files
	Databases DatabasesConfig `json:"databases" mapstructure:"databases"`

	// Tools
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory for sessions, selections and logs
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // openai, anthropic
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url,omitempty" mapstructure:"base_url"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// AgentConfig configures the question-answering agent
type AgentConfig struct {
	Model        string  `json:"model" mapstructure:"model"`
	Temperature  float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens    int     `json:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries   int     `json:"max_retries" mapstructure:"max_retries"`
	SystemPrompt string  `json:"system_prompt,omitempty" mapstructure:"system_prompt"`
}

// DatabasesConfig locates the allow-listed database files
type DatabasesConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`
}

// ToolsConfig holds tool configuration
type ToolsConfig struct {
	TimeoutSeconds int              `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Policy         ToolPolicyConfig `json:"policy" mapstructure:"policy"`
}

// ToolPolicyConfig defines tool access policies
type ToolPolicyConfig struct {
	Allow []string `json:"allow" mapstructure:"allow"`
	Deny  []string `json:"deny" mapstructure:"deny"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
	// RedactPatterns are extra regular expressions masked in log output.
	RedactPatterns []string `json:"redact_patterns,omitempty" mapstructure:"redact_patterns"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Agent: AgentConfig{
			Model:       "gpt-3.5-turbo-0125",
			Temperature: 0.7,
			MaxTokens:   4096,
			MaxRetries:  3,
		},
		Databases: DatabasesConfig{
			Dir: ".",
		},
		Tools: ToolsConfig{
			TimeoutSeconds: 30,
			Policy: ToolPolicyConfig{
				Allow: []string{"*"},
				Deny:  []string{},
			},
		},
		Logging: LoggingConfig{
			Level:     "warn",
			Pretty:    true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		DataDir: "",
	}
}

// SessionsDir is where conversation histories are kept.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// SelectionsDir is where each session's selected database is kept.
func (c *Config) SelectionsDir() string {
	return filepath.Join(c.DataDir, "selections")
}

// String returns a JSON representation of the config with API keys masked
func (c *Config) String() string {
	masked := *c
	masked.AI.Profiles = make([]AIProfile, len(c.AI.Profiles))
	for i, p := range c.AI.Profiles {
		if p.APIKey != "" {
			p.APIKey = "****"
		}
		masked.AI.Profiles[i] = p
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks that configured values are usable. AI credentials are
// checked separately by RequireAI because the direct database commands do not
// need them.
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return errs[0]
	}
	if c.Databases.Dir == "" {
		return fmt.Errorf("databases.dir is required")
	}
	if c.Tools.TimeoutSeconds < 0 {
		return fmt.Errorf("tools.timeout_seconds must be >= 0")
	}
	return nil
}

// RequireAI checks that at least one usable AI profile is configured.
func (c *Config) RequireAI() error {
	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: set OPENAI_API_KEY or ANTHROPIC_API_KEY, or add an ai.profiles entry")
	}

	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
		if err := NewValidator().ValidateProvider(profile.Provider); err != nil {
			return fmt.Errorf("AI profile %s: %w", profile.ID, err)
		}
	}

	return nil
}
