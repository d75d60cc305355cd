// Package targetbuilder executes ordered target plans: it walks each
// target's tasks under the declared failure policy, consults the results
// cache, and handles OnError redirection.
package targetbuilder

import (
	"context"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/anvil/internal/core/ports"
	"go.trai.ch/zerr"
)

// TaskExecutor runs one target's tasks in declared order and reports the
// target's result.
type TaskExecutor struct {
	runner    ports.TaskRunner
	evaluator ports.ConditionEvaluator
	logger    ports.Logger
}

// NewTaskExecutor creates a TaskExecutor.
func NewTaskExecutor(runner ports.TaskRunner, evaluator ports.ConditionEvaluator, logger ports.Logger) *TaskExecutor {
	return &TaskExecutor{
		runner:    runner,
		evaluator: evaluator,
		logger:    logger,
	}
}

// Execute runs the target's tasks against the given property state.
// Task outputs merge into properties as they land, so later tasks and
// conditions observe them. The returned error is non-nil only when the
// build was aborted mid-target; in that case no result may be cached.
func (e *TaskExecutor) Execute(ctx context.Context, target *domain.Target, properties map[string]string) (*domain.TargetResult, error) {
	result := &domain.TargetResult{
		TargetName: target.Name,
		Code:       domain.TargetSucceeded,
		Outputs:    make(map[string]string),
	}

	for i := range target.Tasks {
		if ctx.Err() != nil {
			return nil, zerr.With(domain.ErrBuildAborted, "target", target.Name)
		}

		task := &target.Tasks[i]
		run, err := e.evaluator.Evaluate(task.Condition, properties)
		if err != nil {
			result.Code = domain.TargetFailed
			result.Failure = zerr.With(zerr.Wrap(err, "invalid task condition"), "task", task.Name)
			return result, nil
		}
		if !run {
			// A false task condition skips the task, not the target.
			continue
		}

		outcome, outputs := e.runTask(ctx, task, properties, result)
		switch outcome {
		case domain.TaskSucceeded:
			e.bindOutputs(task, outputs, properties, result)
		case domain.TaskFailedContinue:
			result.Code = domain.TargetFailed
		case domain.TaskFailedStop:
			result.Code = domain.TargetFailed
			return result, nil
		case domain.TaskAborted:
			return nil, zerr.With(domain.ErrBuildAborted, "target", target.Name)
		}
	}

	return result, nil
}

// runTask invokes the task host and classifies the outcome per the
// task's ContinueOnError policy.
func (e *TaskExecutor) runTask(
	ctx context.Context,
	task *domain.TaskSpec,
	properties map[string]string,
	result *domain.TargetResult,
) (domain.TaskOutcome, map[string]string) {
	outputs, err := e.runner.RunTask(ctx, task, properties)
	if err == nil {
		return domain.TaskSucceeded, outputs
	}
	if ctx.Err() != nil {
		// The task host unwound because the build was cancelled; that is
		// an abort, not a task failure.
		return domain.TaskAborted, nil
	}

	failure := zerr.With(zerr.Wrap(err, domain.ErrTaskFailed.Error()), "task", task.Name)
	if result.Failure == nil {
		result.Failure = failure
	}
	e.logger.Error(failure)

	if task.ContinueOnError {
		return domain.TaskFailedContinue, nil
	}
	return domain.TaskFailedStop, nil
}

// bindOutputs routes task outputs through the spec's output bindings into
// the live property state and the target result.
func (e *TaskExecutor) bindOutputs(
	task *domain.TaskSpec,
	outputs map[string]string,
	properties map[string]string,
	result *domain.TargetResult,
) {
	for key, value := range outputs {
		prop, bound := task.OutputBindings[key]
		if !bound {
			continue
		}
		properties[prop] = value
		result.Outputs[prop] = value
	}
}
