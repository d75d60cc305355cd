// Package config provides the YAML project-file loader for anvil.
package config

import (
	"os"
	"path/filepath"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// FileProjectLoader implements ports.ProjectLoader over YAML project
// files on disk.
type FileProjectLoader struct{}

// NewLoader creates a FileProjectLoader.
func NewLoader() *FileProjectLoader {
	return &FileProjectLoader{}
}

// Load reads the project file at path and resolves it into the domain
// project model.
func (l *FileProjectLoader) Load(path string) (*domain.Project, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by user
	if err != nil {
		return nil, zerr.Wrap(err, "failed to read project file")
	}

	var pf Projectfile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to parse project file"), "path", path)
	}

	project := domain.NewProject(filepath.Clean(path))
	project.ToolsVersion = pf.ToolsVersion
	project.Properties = pf.Properties
	project.DefaultTargets = pf.DefaultTargets

	// References are declared relative to the project file's directory.
	dir := filepath.Dir(path)
	for _, ref := range pf.References {
		if !filepath.IsAbs(ref) {
			ref = filepath.Join(dir, ref)
		}
		project.References = append(project.References, filepath.Clean(ref))
	}

	for _, dto := range pf.Targets {
		if dto.Name == "" {
			return nil, zerr.With(zerr.New("target is missing a name"), "path", path)
		}
		target := &domain.Target{
			Name:      dto.Name,
			Condition: dto.Condition,
			DependsOn: dto.DependsOn,
			OnError:   dto.OnError,
			Inputs:    dto.Inputs,
			Outputs:   dto.Outputs,
			Tasks:     tasksFromDTO(dto.Tasks),
		}
		if err := project.AddTarget(target); err != nil {
			return nil, zerr.With(err, "path", path)
		}
	}

	return project, nil
}

func tasksFromDTO(dtos []TaskDTO) []domain.TaskSpec {
	tasks := make([]domain.TaskSpec, len(dtos))
	for i, dto := range dtos {
		name := dto.Name
		if name == "" && len(dto.Cmd) > 0 {
			name = dto.Cmd[0]
		}
		tasks[i] = domain.TaskSpec{
			Name:            name,
			Condition:       dto.Condition,
			ContinueOnError: dto.ContinueOnError,
			Command:         dto.Cmd,
			Parameters:      dto.Params,
			OutputBindings:  dto.Outputs,
		}
	}
	return tasks
}
