package domain

import "go.trai.ch/zerr"

var (
	// ErrCircularDependency is returned when target expansion re-enters a
	// target that is still on the active expansion stack. It is a project
	// definition defect and aborts the affected request.
	ErrCircularDependency = zerr.New("circular target dependency")

	// ErrCircularReference is returned when a project reference chain
	// re-enters a configuration that is already being built further up
	// the same chain. It is a project definition defect and fails the
	// request instead of resubmitting it forever.
	ErrCircularReference = zerr.New("circular project reference")

	// ErrTargetNotFound is returned when a requested or referenced target
	// does not exist in the configuration's project.
	ErrTargetNotFound = zerr.New("target not found")

	// ErrDuplicateTarget is returned when a project declares two targets
	// whose names differ only in case.
	ErrDuplicateTarget = zerr.New("duplicate target definition")

	// ErrBuildAborted marks a request terminated by cancellation rather
	// than by running to completion.
	ErrBuildAborted = zerr.New("build aborted")

	// ErrDependencyTargetFailed marks a target that was not executed
	// because one of its dependencies hard-failed.
	ErrDependencyTargetFailed = zerr.New("dependency target failed")

	// ErrTaskFailed is the failure cause recorded for a target whose task
	// reported a failure outcome.
	ErrTaskFailed = zerr.New("task failed")

	// ErrTaskHostPanic wraps a panic recovered from the task execution
	// host at the request boundary.
	ErrTaskHostPanic = zerr.New("task host panicked")

	// ErrUnknownConfiguration is returned when a configuration id is not
	// present in the configuration cache.
	ErrUnknownConfiguration = zerr.New("unknown configuration")

	// ErrProjectNotAttached is returned when a request starts executing
	// before its configuration has a resolved project.
	ErrProjectNotAttached = zerr.New("configuration has no resolved project")

	// ErrNoTargets is returned when a request names no targets and the
	// project declares none to default to.
	ErrNoTargets = zerr.New("no targets to build")

	// ErrEngineStopped is returned when a request is submitted to an
	// engine that has been aborted or shut down.
	ErrEngineStopped = zerr.New("engine stopped")

	// ErrBuildFailed is the terminal error reported to the CLI when a
	// submitted request completes with a failed result.
	ErrBuildFailed = zerr.New("build failed")
)
