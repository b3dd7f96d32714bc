package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a wizard reading answers from in and prompting on out.
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run asks for credentials and basic settings, starting from base.
func (w *Wizard) Run(base *Config) (*Config, error) {
	cfg := DefaultConfig()
	if base != nil {
		copied := *base
		cfg = &copied
	}
	validator := NewValidator()

	fmt.Fprintln(w.out, "=== sqlpilot configuration ===")
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "API keys (at least one is required):")

	profiles := []AIProfile{}
	for i, provider := range []string{"openai", "anthropic"} {
		key, err := w.askValid(fmt.Sprintf("%s API key (press Enter to skip): ", providerLabel(provider)), func(s string) error {
			if s == "" {
				return nil
			}
			return validator.ValidateAPIKey(s, provider)
		})
		if err != nil {
			return nil, err
		}
		if key != "" {
			profiles = append(profiles, AIProfile{
				ID:       provider + "-default",
				Provider: provider,
				APIKey:   key,
				Priority: i + 1,
			})
		}
	}
	if len(profiles) == 0 && len(cfg.AI.Profiles) == 0 {
		return nil, fmt.Errorf("at least one API key is required")
	}
	if len(profiles) > 0 {
		cfg.AI.Profiles = profiles
	}

	fmt.Fprintln(w.out)

	model, err := w.ask(fmt.Sprintf("Model [%s]: ", cfg.Agent.Model))
	if err != nil {
		return nil, err
	}
	if model != "" {
		cfg.Agent.Model = model
	}

	temp, err := w.askValid(fmt.Sprintf("Temperature [%g]: ", cfg.Agent.Temperature), func(s string) error {
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("temperature must be a number")
		}
		return validator.ValidateTemperature(f)
	})
	if err != nil {
		return nil, err
	}
	if temp != "" {
		cfg.Agent.Temperature, _ = strconv.ParseFloat(temp, 64)
	}

	dir, err := w.ask(fmt.Sprintf("Directory holding the .db files [%s]: ", cfg.Databases.Dir))
	if err != nil {
		return nil, err
	}
	if dir != "" {
		cfg.Databases.Dir = dir
	}

	level, err := w.askValid(fmt.Sprintf("Log level (debug/info/warn/error) [%s]: ", cfg.Logging.Level), func(s string) error {
		if s == "" {
			return nil
		}
		return validator.ValidateLogLevel(s)
	})
	if err != nil {
		return nil, err
	}
	if level != "" {
		cfg.Logging.Level = level
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

func providerLabel(provider string) string {
	if provider == "openai" {
		return "OpenAI"
	}
	return "Anthropic"
}

// askValid repeats the prompt until check accepts the answer.
func (w *Wizard) askValid(prompt string, check func(string) error) (string, error) {
	for {
		answer, err := w.ask(prompt)
		if err != nil {
			return "", err
		}
		if err := check(answer); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		return answer, nil
	}
}

func (w *Wizard) ask(prompt string) (string, error) {
	fmt.Fprint(w.out, prompt)
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
