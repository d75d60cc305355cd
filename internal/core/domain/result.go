package domain

// TargetResultCode classifies the terminal outcome of one target.
type TargetResultCode int

const (
	// TargetSucceeded indicates every executed task succeeded.
	TargetSucceeded TargetResultCode = iota
	// TargetFailed indicates at least one task failed, or a dependency
	// hard-failed before the target could run.
	TargetFailed
	// TargetSkipped indicates the target's condition evaluated false; a
	// skipped target satisfies its dependents.
	TargetSkipped
)

func (c TargetResultCode) String() string {
	switch c {
	case TargetSucceeded:
		return "Succeeded"
	case TargetFailed:
		return "Failed"
	case TargetSkipped:
		return "Skipped"
	default:
		return "Unknown"
	}
}

// TaskOutcome classifies one task invocation.
type TaskOutcome int

const (
	// TaskSucceeded indicates the task ran and succeeded.
	TaskSucceeded TaskOutcome = iota
	// TaskFailedStop indicates a failure that halts the owning target.
	TaskFailedStop
	// TaskFailedContinue indicates a failure on a ContinueOnError task;
	// remaining tasks still run, the target still fails.
	TaskFailedContinue
	// TaskAborted indicates the task host unwound because the build was
	// cancelled. Not a task failure; nothing about the target is cacheable.
	TaskAborted
)

// TargetResult is the authoritative, cacheable outcome of building one
// target for one configuration.
type TargetResult struct {
	TargetName string
	Code       TargetResultCode
	// Outputs holds the property values produced by the target's tasks
	// via their output bindings.
	Outputs map[string]string
	// Failure carries the cause when Code is TargetFailed.
	Failure error
}

// Failed reports whether the target hard-failed. Skipped is not a failure.
func (r *TargetResult) Failed() bool {
	return r.Code == TargetFailed
}

// BuildResult is the terminal outcome of one build request. Every request
// submitted to the engine receives exactly one.
type BuildResult struct {
	RequestID       int
	ConfigurationID ConfigurationID

	// Succeeded is true when no primary target failed and the request was
	// not aborted.
	Succeeded bool
	// Aborted distinguishes "the build was stopped" from "the build ran
	// and failed".
	Aborted bool

	targets map[InternedString]*TargetResult

	// Err carries a request-level terminal error: a definition error, a
	// recovered task host panic, or the child-build failure that blocked
	// execution. Nil for ordinary target failures.
	Err error
}

// NewBuildResult creates an empty result shell for a request.
func NewBuildResult(requestID int, configID ConfigurationID) *BuildResult {
	return &BuildResult{
		RequestID:       requestID,
		ConfigurationID: configID,
		targets:         make(map[InternedString]*TargetResult),
	}
}

// AddTargetResult records a target's outcome, keyed case-insensitively.
func (r *BuildResult) AddTargetResult(tr *TargetResult) {
	r.targets[TargetKey(tr.TargetName)] = tr
}

// TargetResult looks up a recorded outcome by target name, ignoring case.
func (r *BuildResult) TargetResult(name string) (*TargetResult, bool) {
	tr, ok := r.targets[TargetKey(name)]
	return tr, ok
}

// TargetResults returns all recorded target outcomes.
func (r *BuildResult) TargetResults() []*TargetResult {
	out := make([]*TargetResult, 0, len(r.targets))
	for _, tr := range r.targets {
		out = append(out, tr)
	}
	return out
}
