package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aretw0/sluice/pkg/taskfile"
	"gopkg.in/yaml.v3"
)

// ProcessConfig represents the configuration for an external tool execution.
type ProcessConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

// ConfigFile represents the structure of tools.yaml
type ConfigFile struct {
	Tools []ProcessConfig `yaml:"tools" json:"tools"`
}

// LoadTools reads a standalone tools file (YAML or JSON) kept next to the
// Taskfile. A missing file means no extra tools.
func LoadTools(path string) (map[string]ProcessConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]ProcessConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read tools config: %w", err)
	}

	var cfg ConfigFile
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	return index(cfg.Tools), nil
}

// FromTaskfile converts the tools declared in a Taskfile.
func FromTaskfile(specs []taskfile.ToolSpec) map[string]ProcessConfig {
	tools := make([]ProcessConfig, len(specs))
	for i, s := range specs {
		tools[i] = ProcessConfig{
			Name:        s.Name,
			Command:     s.Command,
			Args:        s.Args,
			Environment: s.Env,
			Description: s.Description,
		}
	}
	return index(tools)
}

// Merge overlays tool maps; later maps win.
func Merge(maps ...map[string]ProcessConfig) map[string]ProcessConfig {
	out := make(map[string]ProcessConfig)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

func index(tools []ProcessConfig) map[string]ProcessConfig {
	toolMap := make(map[string]ProcessConfig)
	for _, tool := range tools {
		if tool.Name == "" {
			continue
		}
		if tool.Command == "" {
			tool.Command = tool.Name
		}
		toolMap[tool.Name] = tool
	}
	return toolMap
}
