package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona is the bot identity sent as the system instruction.
type Persona struct {
	Name         string
	SystemPrompt string
}

// PersonaYAML represents the structure of a persona YAML file.
type PersonaYAML struct {
	Name         string   `yaml:"name"`
	SystemPrompt []string `yaml:"system_prompt"`
}

// ResolvePersona picks the system prompt in priority order:
// PERSONA_FILE, then SYSTEM_PROMPT, then the built-in default.
func (c Config) ResolvePersona() (Persona, error) {
	p := Persona{Name: c.BotName, SystemPrompt: DefaultSystemPrompt}
	if s := strings.TrimSpace(c.SystemPrompt); s != "" {
		p.SystemPrompt = s
	}
	if c.PersonaFile == "" {
		return p, nil
	}
	fp, err := LoadPersona(c.PersonaFile)
	if err != nil {
		return Persona{}, fmt.Errorf("op=config.ResolvePersona: %w", err)
	}
	if fp.Name != "" {
		p.Name = fp.Name
	}
	p.SystemPrompt = fp.SystemPrompt
	return p, nil
}

// LoadPersona loads a persona from a YAML file. Prompt lines are joined with newlines.
func LoadPersona(filePath string) (Persona, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return Persona{}, fmt.Errorf("failed to get absolute path: %w", err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return Persona{}, fmt.Errorf("persona file not found: %s", absPath)
	}

	// #nosec G304 -- Persona files are operator supplied
	content, err := os.ReadFile(absPath)
	if err != nil {
		return Persona{}, fmt.Errorf("failed to read persona file: %w", err)
	}

	var py PersonaYAML
	if err := yaml.Unmarshal(content, &py); err != nil {
		return Persona{}, fmt.Errorf("failed to parse YAML: %w", err)
	}

	prompt := strings.TrimSpace(strings.Join(py.SystemPrompt, "\n"))
	if prompt == "" {
		return Persona{}, fmt.Errorf("no system_prompt found in persona file: %s", filePath)
	}
	return Persona{Name: strings.TrimSpace(py.Name), SystemPrompt: prompt}, nil
}
