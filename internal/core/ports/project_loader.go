// Package ports defines the engine's boundary interfaces. The engine
// depends only on these; adapters provide the implementations.
package ports

import "go.trai.ch/anvil/internal/core/domain"

// ProjectLoader resolves a project file path into the read-only target
// table the engine executes. Parsing and the project description language
// live entirely behind this interface.
//
//go:generate mockgen -source=project_loader.go -destination=mocks/mock_project_loader.go -package=mocks
type ProjectLoader interface {
	// Load reads and resolves the project file at the given path.
	Load(path string) (*domain.Project, error)
}
