package config

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// Projectfile represents the structure of an anvil.yaml project file.
type Projectfile struct {
	Version        string            `yaml:"version"`
	ToolsVersion   string            `yaml:"toolsVersion"`
	Properties     map[string]string `yaml:"properties"`
	DefaultTargets NameList          `yaml:"defaultTargets"`
	References     []string          `yaml:"references"`
	Targets        []TargetDTO       `yaml:"targets"`
}

// TargetDTO represents one target definition. Targets are a sequence, not
// a map, because declaration order is significant.
type TargetDTO struct {
	Name      string    `yaml:"name"`
	Condition string    `yaml:"condition"`
	DependsOn NameList  `yaml:"dependsOn"`
	OnError   NameList  `yaml:"onError"`
	Inputs    []string  `yaml:"inputs"`
	Outputs   []string  `yaml:"outputs"`
	Tasks     []TaskDTO `yaml:"tasks"`
}

// TaskDTO represents one task inside a target.
type TaskDTO struct {
	Name            string            `yaml:"name"`
	Condition       string            `yaml:"condition"`
	ContinueOnError bool              `yaml:"continueOnError"`
	Cmd             []string          `yaml:"cmd"`
	Params          map[string]string `yaml:"params"`
	Outputs         map[string]string `yaml:"outputs"`
}

// NameList is a list of target names. It accepts either a YAML sequence
// or a single semicolon-separated scalar ("Compile;Link"), and splits
// semicolons inside sequence elements too.
type NameList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *NameList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = splitNames(value.Value)
		return nil
	default:
		var raw []string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		var names []string
		for _, entry := range raw {
			names = append(names, splitNames(entry)...)
		}
		*l = names
		return nil
	}
}

func splitNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ";") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}
