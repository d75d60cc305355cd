package targetbuilder

import (
	"context"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/anvil/internal/core/ports"
	"go.trai.ch/anvil/internal/engine/planner"
	"go.trai.ch/anvil/internal/engine/resultscache"
	"go.trai.ch/zerr"
)

// Builder drives an ordered target plan for one request. It consults the
// results cache before running anything, single-flights first builds so a
// target executes at most once per configuration, gates targets on their
// dependencies' outcomes, and appends OnError targets after a failure.
type Builder struct {
	results   *resultscache.Cache
	exec      *TaskExecutor
	evaluator ports.ConditionEvaluator
	tracer    ports.Tracer
	logger    ports.Logger
}

// New creates a Builder.
func New(
	results *resultscache.Cache,
	exec *TaskExecutor,
	evaluator ports.ConditionEvaluator,
	tracer ports.Tracer,
	logger ports.Logger,
) *Builder {
	return &Builder{
		results:   results,
		exec:      exec,
		evaluator: evaluator,
		tracer:    tracer,
		logger:    logger,
	}
}

// BuildTargets walks the plan in order, recording each target's outcome
// into result. Properties is the request's live property state; outputs
// of completed targets merge into it. The returned error is non-nil only
// for an abort or a definition error discovered while expanding OnError
// targets.
func (b *Builder) BuildTargets(
	ctx context.Context,
	cfg *domain.Configuration,
	plan planner.Plan,
	properties map[string]string,
	result *domain.BuildResult,
) error {
	project := cfg.Project()
	if project == nil {
		return zerr.With(domain.ErrProjectNotAttached, "config_id", int(cfg.ID))
	}

	// The queue grows as failing targets append their OnError targets.
	queue := make(planner.Plan, len(plan))
	copy(queue, plan)

	failed := make(map[domain.InternedString]bool)

	for i := 0; i < len(queue); i++ {
		if ctx.Err() != nil {
			return domain.ErrBuildAborted
		}
		entry := queue[i]
		target := entry.Target
		key := domain.TargetKey(target.Name)

		if dep, blocked := b.failedDependency(cfg.ID, target, failed); blocked {
			tr := &domain.TargetResult{
				TargetName: target.Name,
				Code:       domain.TargetFailed,
				Failure:    zerr.With(zerr.With(domain.ErrDependencyTargetFailed, "target", target.Name), "dependency", dep),
			}
			b.results.Add(cfg.ID, tr)
			result.AddTargetResult(tr)
			failed[key] = true
			continue
		}

		tr, err := b.buildTarget(ctx, cfg, target, properties)
		if err != nil {
			return err
		}
		result.AddTargetResult(tr)

		for k, v := range tr.Outputs {
			properties[k] = v
		}

		if !tr.Failed() {
			continue
		}
		failed[key] = true

		if len(target.OnError) > 0 {
			redirected, err := planner.Resolve(project, target.OnError)
			if err != nil {
				return err
			}
			for _, oe := range redirected {
				queue = append(queue, planner.Entry{Target: oe.Target, Reason: planner.ReasonDependency})
			}
		}
	}

	return nil
}

// buildTarget produces the target's result, serving it from the results
// cache when present and single-flighting the first build otherwise.
func (b *Builder) buildTarget(
	ctx context.Context,
	cfg *domain.Configuration,
	target *domain.Target,
	properties map[string]string,
) (*domain.TargetResult, error) {
	if tr, ok := b.results.TryGet(cfg.ID, target.Name); ok {
		_, span := b.tracer.Start(ctx, target.Name)
		span.Cached()
		span.End()
		return tr, nil
	}

	return b.results.BuildOnce(cfg.ID, target.Name, func() (*domain.TargetResult, error) {
		_, span := b.tracer.Start(ctx, target.Name)
		defer span.End()

		run, err := b.evaluator.Evaluate(target.Condition, properties)
		if err != nil {
			failure := zerr.With(zerr.Wrap(err, "invalid target condition"), "target", target.Name)
			span.RecordError(failure)
			return &domain.TargetResult{
				TargetName: target.Name,
				Code:       domain.TargetFailed,
				Failure:    failure,
			}, nil
		}
		if !run {
			return &domain.TargetResult{TargetName: target.Name, Code: domain.TargetSkipped}, nil
		}

		tr, err := b.exec.Execute(ctx, target, properties)
		if err != nil {
			// Aborted mid-target: nothing authoritative to cache.
			span.RecordError(err)
			return nil, err
		}
		if tr.Failed() {
			span.RecordError(tr.Failure)
		}
		return tr, nil
	})
}

// failedDependency reports the first dependency of target that hard
// failed, either earlier in this walk or in a cached result. A skipped
// dependency satisfies its dependents.
func (b *Builder) failedDependency(
	configID domain.ConfigurationID,
	target *domain.Target,
	failed map[domain.InternedString]bool,
) (string, bool) {
	for _, dep := range target.DependsOn {
		if failed[domain.TargetKey(dep)] {
			return dep, true
		}
		if tr, ok := b.results.TryGet(configID, dep); ok && tr.Failed() {
			return dep, true
		}
	}
	return "", false
}
