package domain_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.trai.ch/anvil/internal/core/domain"
)

func TestConfigurationIdentity_Fingerprint_Stable(t *testing.T) {
	a := domain.NewConfigurationIdentity("proj/anvil.yaml", "1.0", map[string]string{"Configuration": "Release", "Platform": "x64"})
	b := domain.NewConfigurationIdentity("proj/anvil.yaml", "1.0", map[string]string{"Platform": "x64", "Configuration": "Release"})

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical identities must fingerprint equal regardless of property order")
	}
}

func TestConfigurationIdentity_Fingerprint_Distinct(t *testing.T) {
	base := domain.NewConfigurationIdentity("proj/anvil.yaml", "1.0", map[string]string{"Configuration": "Release"})

	variants := []domain.ConfigurationIdentity{
		domain.NewConfigurationIdentity("proj/other.yaml", "1.0", map[string]string{"Configuration": "Release"}),
		domain.NewConfigurationIdentity("proj/anvil.yaml", "2.0", map[string]string{"Configuration": "Release"}),
		domain.NewConfigurationIdentity("proj/anvil.yaml", "1.0", map[string]string{"Configuration": "Debug"}),
		domain.NewConfigurationIdentity("proj/anvil.yaml", "1.0", nil),
	}
	for _, v := range variants {
		if v.Fingerprint() == base.Fingerprint() {
			t.Errorf("identity %+v must not collide with base", v)
		}
	}
}

func TestConfigurationIdentity_PathNormalized(t *testing.T) {
	a := domain.NewConfigurationIdentity("proj//./anvil.yaml", "", nil)
	b := domain.NewConfigurationIdentity("proj/anvil.yaml", "", nil)

	if a.Fingerprint() != b.Fingerprint() {
		t.Error("path normalization must make equivalent paths identical")
	}
}

func TestConfiguration_AttachProject_FirstWins(t *testing.T) {
	cfg := domain.NewConfiguration(1, domain.NewConfigurationIdentity("p.yaml", "", nil))

	first := domain.NewProject("p.yaml")
	second := domain.NewProject("p.yaml")
	cfg.AttachProject(first)
	cfg.AttachProject(second)

	if cfg.Project() != first {
		t.Error("first attached project must win")
	}
}

func TestConfiguration_ResolveProject_LoadsOnce(t *testing.T) {
	cfg := domain.NewConfiguration(1, domain.NewConfigurationIdentity("p.yaml", "", nil))

	var loads atomic.Int32
	load := func(path string) (*domain.Project, error) {
		loads.Add(1)
		return domain.NewProject(path), nil
	}

	results := make([]*domain.Project, 4)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := cfg.ResolveProject(load)
			if err != nil {
				t.Errorf("resolve failed: %v", err)
			}
			results[i] = p
		}()
	}
	wg.Wait()

	if got := loads.Load(); got != 1 {
		t.Errorf("concurrent resolvers must load once, got %d loads", got)
	}
	for _, p := range results {
		if p != results[0] {
			t.Error("every resolver must see the same project")
		}
	}
}

func TestConfiguration_ResolveProject_ErrorLeavesNothingAttached(t *testing.T) {
	cfg := domain.NewConfiguration(1, domain.NewConfigurationIdentity("p.yaml", "", nil))

	wantErr := errors.New("unreadable")
	if _, err := cfg.ResolveProject(func(string) (*domain.Project, error) {
		return nil, wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("expected load error, got %v", err)
	}
	if cfg.Project() != nil {
		t.Error("failed load must not attach a project")
	}
}

func TestConfiguration_Properties_GlobalOverridesProject(t *testing.T) {
	cfg := domain.NewConfiguration(1, domain.NewConfigurationIdentity("p.yaml", "", map[string]string{
		"Configuration": "Release",
	}))
	project := domain.NewProject("p.yaml")
	project.Properties = map[string]string{
		"Configuration": "Debug",
		"OutDir":        "bin",
	}
	cfg.AttachProject(project)

	props := cfg.Properties()
	if props["Configuration"] != "Release" {
		t.Errorf("global property must override project property, got %q", props["Configuration"])
	}
	if props["OutDir"] != "bin" {
		t.Errorf("project property must survive, got %q", props["OutDir"])
	}

	// Mutating the copy must not leak back.
	props["OutDir"] = "out"
	if cfg.Properties()["OutDir"] != "bin" {
		t.Error("Properties must return a copy")
	}
}

func TestTargetKey_CaseInsensitive(t *testing.T) {
	if domain.TargetKey("Build") != domain.TargetKey("BUILD") {
		t.Error("target keys must fold case")
	}
	if domain.TargetKey("Build") == domain.TargetKey("Clean") {
		t.Error("distinct names must produce distinct keys")
	}
}
