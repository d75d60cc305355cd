// Package configcache implements the session-scoped configuration cache:
// the single owner of all Configuration instances and the authority that
// maps configuration identities to ids.
package configcache

import (
	"sync"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/zerr"
)

// Cache maps configuration identities to Configurations. Creation of a
// given identity happens at most once; racing creators receive the
// winner's configuration. Nothing is evicted during a build session.
type Cache struct {
	mu            sync.RWMutex
	byFingerprint map[uint64]domain.ConfigurationID
	configs       []*domain.Configuration
}

// New creates an empty configuration cache.
func New() *Cache {
	return &Cache{
		byFingerprint: make(map[uint64]domain.ConfigurationID),
	}
}

// GetOrCreate returns the configuration for the given identity, creating
// it when this is the first reference. The returned flag reports whether
// the caller created it and therefore owns resolving its project.
func (c *Cache) GetOrCreate(identity domain.ConfigurationIdentity) (*domain.Configuration, bool) {
	fp := identity.Fingerprint()

	c.mu.RLock()
	if id, ok := c.byFingerprint[fp]; ok {
		cfg := c.configs[id-1]
		c.mu.RUnlock()
		return cfg, false
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check under the write lock; a racing creator may have won.
	if id, ok := c.byFingerprint[fp]; ok {
		return c.configs[id-1], false
	}

	id := domain.ConfigurationID(len(c.configs) + 1)
	cfg := domain.NewConfiguration(id, identity)
	c.byFingerprint[fp] = id
	c.configs = append(c.configs, cfg)
	return cfg, true
}

// Get returns the configuration with the given id.
func (c *Cache) Get(id domain.ConfigurationID) (*domain.Configuration, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if id < 1 || int(id) > len(c.configs) {
		return nil, zerr.With(domain.ErrUnknownConfiguration, "config_id", int(id))
	}
	return c.configs[id-1], nil
}

// Count returns the number of cached configurations. Diagnostic only.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.configs)
}
