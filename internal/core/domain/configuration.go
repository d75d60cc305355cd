// Package domain contains the core domain model for the build engine:
// configurations, projects, targets, tasks, requests and results.
package domain

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ConfigurationID identifies a Configuration within one build session.
// Ids are dense and start at 1; zero means "not yet resolved".
type ConfigurationID int

// ConfigurationIdentity is the value that makes a configuration unique:
// the normalized project file path, the tools version, and the global
// property set. Two requests with equal identities must resolve to the
// same Configuration.
type ConfigurationIdentity struct {
	Path             string
	ToolsVersion     string
	GlobalProperties map[string]string
}

// NewConfigurationIdentity builds an identity with a cleaned project path.
func NewConfigurationIdentity(path, toolsVersion string, globalProps map[string]string) ConfigurationIdentity {
	return ConfigurationIdentity{
		Path:             filepath.Clean(path),
		ToolsVersion:     toolsVersion,
		GlobalProperties: globalProps,
	}
}

// Fingerprint computes a stable hash of the identity. Property order must
// not influence the result, so keys are hashed in sorted order.
func (id ConfigurationIdentity) Fingerprint() uint64 {
	h := xxhash.New()
	_, _ = h.WriteString(id.Path)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(id.ToolsVersion)

	keys := make([]string, 0, len(id.GlobalProperties))
	for k := range id.GlobalProperties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(k)
		_, _ = h.WriteString("=")
		_, _ = h.WriteString(id.GlobalProperties[k])
	}
	return h.Sum64()
}

// Configuration is a uniquely identified (project, tools version, global
// properties) tuple. It is created once per identity by the configuration
// cache and is immutable afterwards, except for attaching the resolved
// project exactly once.
type Configuration struct {
	ID       ConfigurationID
	Identity ConfigurationIdentity

	mu      sync.RWMutex
	project *Project
}

// NewConfiguration creates a configuration for the given identity.
func NewConfiguration(id ConfigurationID, identity ConfigurationIdentity) *Configuration {
	return &Configuration{ID: id, Identity: identity}
}

// AttachProject attaches the resolved project. The first attachment wins;
// concurrent resolvers of the same configuration keep the winner's project.
func (c *Configuration) AttachProject(p *Project) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.project == nil {
		c.project = p
	}
}

// ResolveProject returns the attached project, invoking load for the
// configuration's path when none is attached yet. The lock is held
// across the load so concurrent resolvers of the same configuration
// load at most once; later callers see the first resolver's project.
func (c *Configuration) ResolveProject(load func(path string) (*Project, error)) (*Project, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.project != nil {
		return c.project, nil
	}
	p, err := load(c.Identity.Path)
	if err != nil {
		return nil, err
	}
	c.project = p
	return p, nil
}

// Project returns the resolved project, or nil if none is attached yet.
func (c *Configuration) Project() *Project {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.project
}

// Properties returns the effective property state for a fresh request
// against this configuration: project-declared properties overridden by
// the identity's global properties. The returned map is a copy.
func (c *Configuration) Properties() map[string]string {
	props := make(map[string]string)
	if p := c.Project(); p != nil {
		for k, v := range p.Properties {
			props[k] = v
		}
	}
	for k, v := range c.Identity.GlobalProperties {
		props[k] = v
	}
	return props
}
