package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "gpt-3.5-turbo-0125", cfg.Agent.Model)
	assert.Equal(t, 0.7, cfg.Agent.Temperature)
	assert.Equal(t, ".", cfg.Databases.Dir)
	assert.Equal(t, 30, cfg.Tools.TimeoutSeconds)
	assert.Equal(t, []string{"*"}, cfg.Tools.Policy.Allow)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Empty(t, cfg.AI.Profiles)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	t.Run("invalid temperature", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Agent.Temperature = 2.5
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "temperature")
	})

	t.Run("empty model", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Agent.Model = " "
		assert.Error(t, cfg.Validate())
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Logging.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})

	t.Run("missing database dir", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Databases.Dir = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("unsupported provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.Profiles = []AIProfile{{ID: "g", Provider: "gemini", APIKey: "x"}}
		assert.Error(t, cfg.Validate())
	})
}

func TestRequireAI(t *testing.T) {
	t.Run("missing profiles", func(t *testing.T) {
		err := DefaultConfig().RequireAI()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "OPENAI_API_KEY")
	})

	t.Run("missing key", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.Profiles = []AIProfile{{ID: "p", Provider: "openai"}}
		assert.Error(t, cfg.RequireAI())
	})

	t.Run("valid profile", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.Profiles = []AIProfile{{ID: "p", Provider: "anthropic", APIKey: "sk-ant-x", Priority: 1}}
		assert.NoError(t, cfg.RequireAI())
	})
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AI.Profiles = []AIProfile{{ID: "p", Provider: "openai", APIKey: "sk-secret"}}

	out := cfg.String()
	assert.NotContains(t, out, "sk-secret")
	assert.Contains(t, out, "****")
	assert.Equal(t, "sk-secret", cfg.AI.Profiles[0].APIKey)
}

func TestValidator(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateAPIKey("sk-abc", "openai"))
	assert.Error(t, v.ValidateAPIKey("abc", "openai"))
	assert.Error(t, v.ValidateAPIKey("sk-abc", "anthropic"))
	assert.Error(t, v.ValidateAPIKey("", "openai"))

	assert.NoError(t, v.ValidateMaxTokens(0))
	assert.Error(t, v.ValidateMaxTokens(-1))
	assert.Error(t, v.ValidateMaxTokens(300000))

	cfg := DefaultConfig()
	cfg.Agent.MaxRetries = -1
	cfg.Logging.Level = "loud"
	assert.Len(t, v.ValidateConfig(cfg), 2)
}
