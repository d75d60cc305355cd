// Package planner turns a requested target list into an ordered execution
// plan, expanding declared dependencies depth-first and diagnosing
// circular references.
package planner

import (
	"strings"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/zerr"
)

// Reason records why a target is in the plan. Result reporting treats the
// two differently: only a primary target's failure fails the request.
type Reason int

const (
	// ReasonPrimary marks a target explicitly named in the request.
	ReasonPrimary Reason = iota
	// ReasonDependency marks a target pulled in via DependsOn (or an
	// OnError redirect).
	ReasonDependency
)

// Entry is one planned target invocation.
type Entry struct {
	Target *domain.Target
	Reason Reason
}

// Plan is an ordered execution plan. Dependencies precede their
// dependents; each target appears at most once.
type Plan []Entry

// Names returns the planned target names in execution order.
func (p Plan) Names() []string {
	names := make([]string, len(p))
	for i, e := range p {
		names[i] = e.Target.Name
	}
	return names
}

// Resolve expands the requested targets against the project's target
// table. Requested duplicates collapse to a single execution; a target
// reached both as a dependency and by explicit request counts as primary.
// Conditions are not consulted here: they are evaluated at execution
// time, when earlier targets may have changed the property state.
func Resolve(project *domain.Project, requested []string) (Plan, error) {
	r := &resolver{
		project: project,
		state:   make(map[domain.InternedString]visitState),
		index:   make(map[domain.InternedString]int),
	}
	for _, name := range requested {
		if err := r.visit(name, ReasonPrimary); err != nil {
			return nil, err
		}
	}
	return r.plan, nil
}

type visitState int

const (
	unvisited visitState = iota
	expanding
	planned
)

type resolver struct {
	project *domain.Project
	state   map[domain.InternedString]visitState
	path    []string
	plan    Plan
	index   map[domain.InternedString]int
}

func (r *resolver) visit(name string, reason Reason) error {
	key := domain.TargetKey(name)

	switch r.state[key] {
	case expanding:
		// Re-encountered on the active expansion stack: a definition
		// error, not something to retry or partially satisfy.
		return r.cycleError(name)
	case planned:
		if reason == ReasonPrimary {
			r.plan[r.index[key]].Reason = ReasonPrimary
		}
		return nil
	}

	target, ok := r.project.Target(name)
	if !ok {
		return zerr.With(zerr.With(domain.ErrTargetNotFound, "target", name), "project", r.project.Path)
	}

	r.state[key] = expanding
	r.path = append(r.path, target.Name)

	for _, dep := range target.DependsOn {
		if err := r.visit(dep, ReasonDependency); err != nil {
			return err
		}
	}

	r.state[key] = planned
	r.path = r.path[:len(r.path)-1]
	r.index[key] = len(r.plan)
	r.plan = append(r.plan, Entry{Target: target, Reason: reason})
	return nil
}

// cycleError reports the cycle as the portion of the active expansion
// stack from the re-entered target onward.
func (r *resolver) cycleError(name string) error {
	key := domain.TargetKey(name)
	start := 0
	for i, n := range r.path {
		if domain.TargetKey(n) == key {
			start = i
			break
		}
	}
	cycle := strings.Join(append(r.path[start:], name), " -> ")
	return zerr.With(domain.ErrCircularDependency, "cycle", cycle)
}
