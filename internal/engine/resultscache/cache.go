// Package resultscache implements the per-session memoization layer for
// target results: at most one authoritative result per (configuration,
// target) key, with a single-flight guard so concurrent first builds of
// the same target collapse into one execution.
package resultscache

import (
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"go.trai.ch/anvil/internal/core/domain"
)

type key struct {
	config domain.ConfigurationID
	target domain.InternedString
}

func newKey(configID domain.ConfigurationID, targetName string) key {
	return key{config: configID, target: domain.TargetKey(targetName)}
}

func (k key) String() string {
	return strconv.Itoa(int(k.config)) + "/" + k.target.String()
}

// Cache stores target results keyed by (configuration id, case-folded
// target name). Reads and writes are linearizable; a stored result is
// authoritative for the rest of the session.
type Cache struct {
	mu      sync.RWMutex
	results map[key]*domain.TargetResult
	flight  singleflight.Group
}

// New creates an empty results cache.
func New() *Cache {
	return &Cache{
		results: make(map[key]*domain.TargetResult),
	}
}

// TryGet returns the cached result for a target, if any. Lookup ignores
// the target name's case.
func (c *Cache) TryGet(configID domain.ConfigurationID, targetName string) (*domain.TargetResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.results[newKey(configID, targetName)]
	return res, ok
}

// Add stores a result. The first result for a key wins; a later Add for
// the same key is ignored so a completed target is never overwritten by
// accident.
func (c *Cache) Add(configID domain.ConfigurationID, result *domain.TargetResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := newKey(configID, result.TargetName)
	if _, exists := c.results[k]; exists {
		return
	}
	c.results[k] = result
}

// BuildOnce returns the cached result for the target or, on a miss, runs
// build exactly once across all concurrent callers of the same key and
// caches its result. A build that returns an error (an aborted or
// definition-failed build) caches nothing, so a later request may retry.
func (c *Cache) BuildOnce(
	configID domain.ConfigurationID,
	targetName string,
	build func() (*domain.TargetResult, error),
) (*domain.TargetResult, error) {
	if res, ok := c.TryGet(configID, targetName); ok {
		return res, nil
	}

	k := newKey(configID, targetName)
	v, err, _ := c.flight.Do(k.String(), func() (any, error) {
		// Re-check inside the flight: a previous flight may have landed
		// between our miss and the Do call.
		if res, ok := c.TryGet(configID, targetName); ok {
			return res, nil
		}
		res, err := build()
		if err != nil {
			return nil, err
		}
		c.Add(configID, res)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.TargetResult), nil
}

// Count returns the number of cached results. Diagnostic only.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}
