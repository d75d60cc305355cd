package domain

import "go.trai.ch/zerr"

// Project is the resolved, read-only representation of one project file:
// an ordered target table plus the project-level settings the engine
// needs. How it was parsed is the loader adapter's concern.
type Project struct {
	Path           string
	ToolsVersion   string
	Properties     map[string]string
	DefaultTargets []string
	References     []string

	targets []*Target
	index   map[InternedString]*Target
}

// NewProject creates an empty project for the given file path.
func NewProject(path string) *Project {
	return &Project{
		Path:  path,
		index: make(map[InternedString]*Target),
	}
}

// AddTarget appends a target to the project's ordered target table.
// Target names are case-insensitive unique keys.
func (p *Project) AddTarget(t *Target) error {
	key := TargetKey(t.Name)
	if _, exists := p.index[key]; exists {
		return zerr.With(ErrDuplicateTarget, "target", t.Name)
	}
	p.targets = append(p.targets, t)
	p.index[key] = t
	return nil
}

// Target looks up a target by name, ignoring case.
func (p *Project) Target(name string) (*Target, bool) {
	t, ok := p.index[TargetKey(name)]
	return t, ok
}

// Targets returns the targets in declaration order.
func (p *Project) Targets() []*Target {
	return p.targets
}

// EntryTargets returns the targets a request with an empty target list
// should build: the declared default targets, or failing that the first
// declared target.
func (p *Project) EntryTargets() []string {
	if len(p.DefaultTargets) > 0 {
		return p.DefaultTargets
	}
	if len(p.targets) > 0 {
		return []string{p.targets[0].Name}
	}
	return nil
}

// Target is a named, conditionally-executed, ordered group of tasks with
// declared dependencies.
type Target struct {
	Name      string
	Condition string
	DependsOn []string
	OnError   []string
	Tasks     []TaskSpec

	// Declared for future incremental builds; the engine records but does
	// not yet consult them.
	Inputs  []string
	Outputs []string
}

// TaskSpec is the declaration of one task inside a target. What the task
// does is the task host's business; the engine only sequences it and
// applies the failure policy.
type TaskSpec struct {
	Name            string
	Condition       string
	ContinueOnError bool
	Command         []string
	Parameters      map[string]string

	// OutputBindings routes task outputs into request properties:
	// output key -> property name.
	OutputBindings map[string]string
}
