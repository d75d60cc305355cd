package requestbuilder_test

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"

	"go.uber.org/mock/gomock"

	"go.trai.ch/anvil/internal/adapters/telemetry"
	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/anvil/internal/core/ports/mocks"
	"go.trai.ch/anvil/internal/engine/requestbuilder"
	"go.trai.ch/anvil/internal/engine/resultscache"
	"go.trai.ch/anvil/internal/engine/targetbuilder"
)

type nopLogger struct{}

func (nopLogger) Info(string) {}
func (nopLogger) Warn(string) {}
func (nopLogger) Error(error) {}

// fakeSubmitter hands out pre-arranged completion channels per reference
// path, in submission order.
type fakeSubmitter struct {
	channels []chan *domain.BuildResult
	next     int
}

func (f *fakeSubmitter) SubmitChild(_ context.Context, _ *domain.BuildRequest) (<-chan *domain.BuildResult, error) {
	ch := f.channels[f.next]
	f.next++
	return ch, nil
}

func alwaysTrue(ctrl *gomock.Controller) *mocks.MockConditionEvaluator {
	eval := mocks.NewMockConditionEvaluator(ctrl)
	eval.EXPECT().Evaluate(gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()
	return eval
}

func newTargets(runner *mocks.MockTaskRunner, eval *mocks.MockConditionEvaluator) *targetbuilder.Builder {
	exec := targetbuilder.NewTaskExecutor(runner, eval, nopLogger{})
	return targetbuilder.New(resultscache.New(), exec, eval, telemetry.NewNoOpTracer(), nopLogger{})
}

func newRequestBuilder(
	runner *mocks.MockTaskRunner,
	eval *mocks.MockConditionEvaluator,
	loader *mocks.MockProjectLoader,
	cfg *domain.Configuration,
	submitter requestbuilder.ChildSubmitter,
	abort <-chan struct{},
	targets []string,
) *requestbuilder.Builder {
	req := &domain.BuildRequest{ConfigurationID: cfg.ID, Targets: targets}
	return requestbuilder.New(
		1, req, cfg, loader, newTargets(runner, eval),
		telemetry.NewNoOpTracer(), nopLogger{}, submitter, abort,
	)
}

func attachedConfig(t *testing.T, targets ...*domain.Target) *domain.Configuration {
	t.Helper()
	cfg := domain.NewConfiguration(1, domain.NewConfigurationIdentity("p.yaml", "", nil))
	project := domain.NewProject("p.yaml")
	for _, target := range targets {
		if err := project.AddTarget(target); err != nil {
			t.Fatalf("failed to add target %s: %v", target.Name, err)
		}
	}
	cfg.AttachProject(project)
	return cfg
}

func TestBuilder_Build_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := attachedConfig(t, &domain.Target{Name: "Build", Tasks: []domain.TaskSpec{{Name: "T"}}})

	runner := mocks.NewMockTaskRunner(ctrl)
	runner.EXPECT().RunTask(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)
	loader := mocks.NewMockProjectLoader(ctrl)

	b := newRequestBuilder(runner, alwaysTrue(ctrl), loader, cfg, &fakeSubmitter{}, make(chan struct{}), []string{"Build"})

	result := b.Build(context.Background())
	if !result.Succeeded || result.Aborted {
		t.Errorf("expected success, got %+v", result)
	}
	if b.State() != requestbuilder.StateCompleted {
		t.Errorf("expected Completed state, got %s", b.State())
	}
}

func TestBuilder_Build_LoadsProjectOnFirstReference(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := domain.NewConfiguration(1, domain.NewConfigurationIdentity("p.yaml", "", nil))

	project := domain.NewProject("p.yaml")
	if err := project.AddTarget(&domain.Target{Name: "Build", Tasks: []domain.TaskSpec{{Name: "T"}}}); err != nil {
		t.Fatal(err)
	}
	loader := mocks.NewMockProjectLoader(ctrl)
	loader.EXPECT().Load("p.yaml").Return(project, nil).Times(1)

	runner := mocks.NewMockTaskRunner(ctrl)
	runner.EXPECT().RunTask(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)

	b := newRequestBuilder(runner, alwaysTrue(ctrl), loader, cfg, &fakeSubmitter{}, make(chan struct{}), nil)

	// Empty target list falls back to the project's entry targets.
	result := b.Build(context.Background())
	if !result.Succeeded {
		t.Errorf("expected success, got %+v", result)
	}
	if cfg.Project() != project {
		t.Error("resolved project must be attached to the configuration")
	}
}

func TestBuilder_Build_ProjectLoadFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := domain.NewConfiguration(1, domain.NewConfigurationIdentity("missing.yaml", "", nil))
	loader := mocks.NewMockProjectLoader(ctrl)
	loader.EXPECT().Load("missing.yaml").Return(nil, errors.New("no such file")).Times(1)

	b := newRequestBuilder(mocks.NewMockTaskRunner(ctrl), alwaysTrue(ctrl), loader, cfg, &fakeSubmitter{}, make(chan struct{}), nil)

	result := b.Build(context.Background())
	if result.Succeeded || result.Err == nil {
		t.Errorf("expected failure with error, got %+v", result)
	}
}

func TestBuilder_Build_DefinitionError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := attachedConfig(t,
		&domain.Target{Name: "A", DependsOn: []string{"B"}},
		&domain.Target{Name: "B", DependsOn: []string{"A"}},
	)

	b := newRequestBuilder(mocks.NewMockTaskRunner(ctrl), alwaysTrue(ctrl), mocks.NewMockProjectLoader(ctrl), cfg, &fakeSubmitter{}, make(chan struct{}), []string{"A"})

	result := b.Build(context.Background())
	if result.Succeeded {
		t.Error("a circular dependency must fail the request")
	}
	if !errors.Is(result.Err, domain.ErrCircularDependency) {
		t.Errorf("expected ErrCircularDependency, got %v", result.Err)
	}
}

func TestBuilder_Build_ChildFailureBlocksOwnTargets(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		cfg := attachedConfig(t, &domain.Target{Name: "Build", Tasks: []domain.TaskSpec{{Name: "T"}}})
		cfg.Project().References = []string{"child.yaml"}

		childDone := make(chan *domain.BuildResult, 1)
		failed := domain.NewBuildResult(2, 2)
		failed.Succeeded = false
		childDone <- failed

		// No RunTask expectation: our own targets must not run.
		b := newRequestBuilder(
			mocks.NewMockTaskRunner(ctrl), alwaysTrue(ctrl), mocks.NewMockProjectLoader(ctrl),
			cfg, &fakeSubmitter{channels: []chan *domain.BuildResult{childDone}},
			make(chan struct{}), []string{"Build"},
		)

		result := b.Build(context.Background())
		if result.Succeeded || result.Aborted {
			t.Errorf("a failed reference must fail the request outright, got %+v", result)
		}
		if result.Err == nil {
			t.Error("the child failure must surface as the request error")
		}
	})
}

func TestBuilder_Build_AllChildrenCollected(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		cfg := attachedConfig(t, &domain.Target{Name: "Build", Tasks: []domain.TaskSpec{{Name: "T"}}})
		cfg.Project().References = []string{"a.yaml", "b.yaml"}

		fast := make(chan *domain.BuildResult, 1)
		slow := make(chan *domain.BuildResult, 1)
		failedChild := domain.NewBuildResult(2, 2)
		fast <- failedChild

		b := newRequestBuilder(
			mocks.NewMockTaskRunner(ctrl), alwaysTrue(ctrl), mocks.NewMockProjectLoader(ctrl),
			cfg, &fakeSubmitter{channels: []chan *domain.BuildResult{fast, slow}},
			make(chan struct{}), []string{"Build"},
		)

		resultCh := make(chan *domain.BuildResult)
		go func() {
			resultCh <- b.Build(context.Background())
		}()

		// One child failed already, but the other is still outstanding:
		// the builder must stay parked.
		synctest.Wait()
		select {
		case <-resultCh:
			t.Fatal("builder must not complete while a child is in flight")
		default:
		}
		if got := b.State(); got != requestbuilder.StateWaitingOnReferences {
			t.Fatalf("expected WaitingOnReferences, got %s", got)
		}

		okChild := domain.NewBuildResult(3, 3)
		okChild.Succeeded = true
		slow <- okChild

		result := <-resultCh
		if result.Succeeded {
			t.Error("the collected child failure must fail the request")
		}
	})
}

func TestBuilder_CancelWhileWaitingOnReferences(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		cfg := attachedConfig(t, &domain.Target{Name: "Build", Tasks: []domain.TaskSpec{{Name: "T"}}})
		cfg.Project().References = []string{"child.yaml"}

		// The child never completes.
		pending := make(chan *domain.BuildResult, 1)

		b := newRequestBuilder(
			mocks.NewMockTaskRunner(ctrl), alwaysTrue(ctrl), mocks.NewMockProjectLoader(ctrl),
			cfg, &fakeSubmitter{channels: []chan *domain.BuildResult{pending}},
			make(chan struct{}), []string{"Build"},
		)

		resultCh := make(chan *domain.BuildResult)
		go func() {
			resultCh <- b.Build(context.Background())
		}()

		synctest.Wait()
		if got := b.State(); got != requestbuilder.StateWaitingOnReferences {
			t.Fatalf("expected WaitingOnReferences, got %s", got)
		}

		b.CancelRequest()
		result := <-resultCh

		if !result.Aborted {
			t.Error("cancellation must produce an Aborted result, not a failure")
		}
		if !errors.Is(result.Err, domain.ErrBuildAborted) {
			t.Errorf("expected ErrBuildAborted, got %v", result.Err)
		}

		// Unblock the leftover collector.
		pending <- domain.NewBuildResult(2, 2)
	})
}

func TestBuilder_TaskHostPanicBecomesFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := attachedConfig(t, &domain.Target{Name: "Build", Tasks: []domain.TaskSpec{{Name: "T"}}})

	runner := mocks.NewMockTaskRunner(ctrl)
	runner.EXPECT().RunTask(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, *domain.TaskSpec, map[string]string) (map[string]string, error) {
			panic("task host exploded")
		},
	).Times(1)

	b := newRequestBuilder(runner, alwaysTrue(ctrl), mocks.NewMockProjectLoader(ctrl), cfg, &fakeSubmitter{}, make(chan struct{}), []string{"Build"})

	result := b.Build(context.Background())
	if result.Succeeded {
		t.Error("a panicking task host must fail the request, not crash it")
	}
	if !errors.Is(result.Err, domain.ErrTaskHostPanic) {
		t.Errorf("expected ErrTaskHostPanic, got %v", result.Err)
	}
	if b.State() != requestbuilder.StateCompleted {
		t.Errorf("expected Completed state, got %s", b.State())
	}
}

func TestBuilder_Build_NoTargets(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := attachedConfig(t)

	b := newRequestBuilder(mocks.NewMockTaskRunner(ctrl), alwaysTrue(ctrl), mocks.NewMockProjectLoader(ctrl), cfg, &fakeSubmitter{}, make(chan struct{}), nil)

	result := b.Build(context.Background())
	if result.Succeeded || !errors.Is(result.Err, domain.ErrNoTargets) {
		t.Errorf("expected ErrNoTargets, got %+v", result)
	}
}

func TestBuilder_SkippedRequestedTargetStillSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := attachedConfig(t,
		&domain.Target{Name: "Build", Tasks: []domain.TaskSpec{{Name: "Compile"}}},
		&domain.Target{Name: "Audit", Condition: "false", Tasks: []domain.TaskSpec{{Name: "Scan"}}},
	)

	// Only Build's task runs; Audit's condition holds it back.
	runner := mocks.NewMockTaskRunner(ctrl)
	runner.EXPECT().RunTask(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).Times(1)

	eval := mocks.NewMockConditionEvaluator(ctrl)
	eval.EXPECT().Evaluate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(cond string, _ map[string]string) (bool, error) {
			return cond != "false", nil
		},
	).AnyTimes()

	b := newRequestBuilder(runner, eval, mocks.NewMockProjectLoader(ctrl), cfg, &fakeSubmitter{}, make(chan struct{}), []string{"Build", "Audit"})

	result := b.Build(context.Background())
	if !result.Succeeded {
		t.Errorf("a skipped target is not a failure, got %+v", result)
	}
	audit, ok := result.TargetResult("Audit")
	if !ok || audit.Code != domain.TargetSkipped {
		t.Errorf("expected Audit to be skipped, got %+v", audit)
	}
}

// splitSubmitter serves the first child from a pre-filled channel and
// refuses every later submission with err.
type splitSubmitter struct {
	first chan *domain.BuildResult
	err   error
	calls int
}

func (s *splitSubmitter) SubmitChild(context.Context, *domain.BuildRequest) (<-chan *domain.BuildResult, error) {
	s.calls++
	if s.calls == 1 {
		return s.first, nil
	}
	return nil, s.err
}

func TestBuilder_SelfReferenceIsDefinitionError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := attachedConfig(t, &domain.Target{Name: "Build", Tasks: []domain.TaskSpec{{Name: "T"}}})
	cfg.Project().References = []string{"p.yaml"}

	// A project referencing its own configuration must fail before any
	// child is submitted; a resubmission would wait on itself forever.
	sub := &splitSubmitter{err: errors.New("unexpected submission")}
	b := newRequestBuilder(
		mocks.NewMockTaskRunner(ctrl), alwaysTrue(ctrl), mocks.NewMockProjectLoader(ctrl),
		cfg, sub, make(chan struct{}), []string{"Build"},
	)

	result := b.Build(context.Background())
	if result.Succeeded || result.Aborted {
		t.Errorf("a self-reference is a definition error, got %+v", result)
	}
	if !errors.Is(result.Err, domain.ErrCircularReference) {
		t.Errorf("expected ErrCircularReference, got %v", result.Err)
	}
	if sub.calls != 0 {
		t.Errorf("no child may be submitted for a self-reference, got %d submissions", sub.calls)
	}
}

func TestBuilder_EngineStopDuringSubmissionAborts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := attachedConfig(t, &domain.Target{Name: "Build", Tasks: []domain.TaskSpec{{Name: "T"}}})
	cfg.Project().References = []string{"a.yaml", "b.yaml"}

	okChild := domain.NewBuildResult(2, 2)
	okChild.Succeeded = true
	first := make(chan *domain.BuildResult, 1)
	first <- okChild

	// The engine shuts down between the two submissions; the request
	// must terminate as aborted, not as a build failure.
	b := newRequestBuilder(
		mocks.NewMockTaskRunner(ctrl), alwaysTrue(ctrl), mocks.NewMockProjectLoader(ctrl),
		cfg, &splitSubmitter{first: first, err: domain.ErrEngineStopped},
		make(chan struct{}), []string{"Build"},
	)

	result := b.Build(context.Background())
	if !result.Aborted || !errors.Is(result.Err, domain.ErrBuildAborted) {
		t.Errorf("a stopped engine mid-submission is an abort, got %+v", result)
	}
	if len(first) != 0 {
		t.Error("the already-submitted child must still be collected")
	}
}

func TestBuilder_SubmitFailureCollectsSubmittedChildren(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cfg := attachedConfig(t, &domain.Target{Name: "Build", Tasks: []domain.TaskSpec{{Name: "T"}}})
	cfg.Project().References = []string{"a.yaml", "b.yaml"}

	okChild := domain.NewBuildResult(2, 2)
	okChild.Succeeded = true
	first := make(chan *domain.BuildResult, 1)
	first <- okChild

	submitErr := errors.New("submission refused")
	b := newRequestBuilder(
		mocks.NewMockTaskRunner(ctrl), alwaysTrue(ctrl), mocks.NewMockProjectLoader(ctrl),
		cfg, &splitSubmitter{first: first, err: submitErr},
		make(chan struct{}), []string{"Build"},
	)

	result := b.Build(context.Background())
	if result.Succeeded || result.Aborted {
		t.Errorf("a refused submission fails the request, got %+v", result)
	}
	if !errors.Is(result.Err, submitErr) {
		t.Errorf("expected the submit error as cause, got %v", result.Err)
	}
	if len(first) != 0 {
		t.Error("the already-submitted child must be collected before the failure surfaces")
	}
}
