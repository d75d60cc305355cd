package ports

import (
	"context"

	"go.trai.ch/anvil/internal/core/domain"
)

// TaskRunner is the task execution host. The engine does not know what a
// task does; it hands over the spec and the current property state and
// gets back output values or a failure.
//
//go:generate mockgen -source=task_runner.go -destination=mocks/mock_task_runner.go -package=mocks
type TaskRunner interface {
	// RunTask executes one task. The returned map carries the task's
	// output values keyed by output name, to be routed through the
	// spec's output bindings. A non-nil error means the task failed;
	// the caller classifies it per the spec's ContinueOnError policy.
	RunTask(ctx context.Context, task *domain.TaskSpec, properties map[string]string) (map[string]string, error)
}
