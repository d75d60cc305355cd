// Package requestbuilder implements the per-request coordinator: it
// resolves the request's project, issues child requests for referenced
// projects, parks until they complete, and then drives the request's own
// target plan.
package requestbuilder

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/anvil/internal/core/ports"
	"go.trai.ch/anvil/internal/engine/planner"
	"go.trai.ch/anvil/internal/engine/targetbuilder"
	"go.trai.ch/zerr"
)

// State is the request builder's lifecycle state.
type State int32

const (
	// StateNew is the initial state.
	StateNew State = iota
	// StateWaitingOnReferences means child requests are in flight and the
	// builder is parked.
	StateWaitingOnReferences
	// StateResuming means all children completed and their results are
	// being merged.
	StateResuming
	// StateExecuting means the builder is running its own target plan.
	StateExecuting
	// StateCancelling means a cancellation signal was observed and the
	// builder is winding down.
	StateCancelling
	// StateCompleted is terminal; the result has been produced.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateWaitingOnReferences:
		return "WaitingOnReferences"
	case StateResuming:
		return "Resuming"
	case StateExecuting:
		return "Executing"
	case StateCancelling:
		return "Cancelling"
	case StateCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// ChildSubmitter issues child build requests back into the engine. The
// returned channel delivers the child's terminal result exactly once.
type ChildSubmitter interface {
	SubmitChild(ctx context.Context, req *domain.BuildRequest) (<-chan *domain.BuildResult, error)
}

// Builder coordinates one build request from submission to its terminal
// result. Build always produces exactly one BuildResult; it never lets a
// task host failure escape.
type Builder struct {
	id        int
	request   *domain.BuildRequest
	cfg       *domain.Configuration
	loader    ports.ProjectLoader
	targets   *targetbuilder.Builder
	tracer    ports.Tracer
	logger    ports.Logger
	submitter ChildSubmitter

	// abort is the session-wide abort broadcast; cancel is this request's
	// own cancellation.
	abort      <-chan struct{}
	cancelOnce sync.Once
	cancel     chan struct{}
	resume     chan struct{}

	state atomic.Int32
}

// New creates a Builder for one request against an already-resolved
// configuration.
func New(
	id int,
	request *domain.BuildRequest,
	cfg *domain.Configuration,
	loader ports.ProjectLoader,
	targets *targetbuilder.Builder,
	tracer ports.Tracer,
	logger ports.Logger,
	submitter ChildSubmitter,
	abort <-chan struct{},
) *Builder {
	return &Builder{
		id:        id,
		request:   request,
		cfg:       cfg,
		loader:    loader,
		targets:   targets,
		tracer:    tracer,
		logger:    logger,
		submitter: submitter,
		abort:     abort,
		cancel:    make(chan struct{}),
		resume:    make(chan struct{}, 1),
	}
}

// State returns the builder's current lifecycle state.
func (b *Builder) State() State {
	return State(b.state.Load())
}

func (b *Builder) setState(s State) {
	b.state.Store(int32(s))
}

// CancelRequest signals this request to stop. Safe to call more than
// once and from any goroutine.
func (b *Builder) CancelRequest() {
	b.cancelOnce.Do(func() {
		close(b.cancel)
	})
}

// ContinueRequest wakes a builder parked in WaitingOnReferences. It is
// signalled once all outstanding child requests have completed.
func (b *Builder) ContinueRequest() {
	select {
	case b.resume <- struct{}{}:
	default:
	}
}

// Build runs the request to completion and returns its terminal result.
// All failure modes, including panics from the task host, terminate in a
// result; the engine relies on that to deliver exactly one outcome per
// request.
func (b *Builder) Build(ctx context.Context) (result *domain.BuildResult) {
	result = domain.NewBuildResult(b.id, b.cfg.ID)

	defer func() {
		if r := recover(); r != nil {
			result.Succeeded = false
			result.Err = zerr.With(domain.ErrTaskHostPanic, "panic", fmt.Sprint(r))
			b.logger.Error(result.Err)
		}
		b.setState(StateCompleted)
	}()

	project, err := b.resolveProject()
	if err != nil {
		result.Err = err
		return result
	}

	requested := b.request.Targets
	if len(requested) == 0 {
		requested = project.EntryTargets()
	}
	if len(requested) == 0 {
		result.Err = zerr.With(domain.ErrNoTargets, "project", project.Path)
		return result
	}

	if childErr, aborted := b.buildReferences(ctx, project); aborted {
		return b.abortResult(result)
	} else if childErr != nil {
		// A referenced build hard-failed; the preconditions for our own
		// targets are gone. Fail directly without running them.
		result.Err = childErr
		return result
	}

	b.setState(StateExecuting)

	plan, err := planner.Resolve(project, requested)
	if err != nil {
		result.Err = err
		return result
	}
	b.tracer.EmitPlan(ctx, plan.Names())

	buildCtx, stop := b.cancellableContext(ctx)
	defer stop()

	properties := b.cfg.Properties()
	err = b.targets.BuildTargets(buildCtx, b.cfg, plan, properties, result)
	switch {
	case errors.Is(err, domain.ErrBuildAborted):
		return b.abortResult(result)
	case err != nil:
		result.Err = err
		return result
	}

	result.Succeeded = true
	for _, name := range requested {
		if tr, ok := result.TargetResult(name); ok && tr.Failed() {
			result.Succeeded = false
			break
		}
	}
	return result
}

// resolveProject attaches the configuration's project, loading it if this
// request is the first to reference the configuration. The configuration
// serializes concurrent resolvers so the project file is read once.
func (b *Builder) resolveProject() (*domain.Project, error) {
	p, err := b.cfg.ResolveProject(b.loader.Load)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to resolve project")
	}
	return p, nil
}

// buildReferences submits one child request per referenced project and
// parks until every child completes or cancellation arrives. A reference
// that re-enters this request's own ancestry is a definition error and
// is never submitted. All outstanding children are always collected
// before a failure surfaces; in-flight work is never abandoned.
func (b *Builder) buildReferences(ctx context.Context, project *domain.Project) (failure error, aborted bool) {
	if len(project.References) == 0 {
		return nil, false
	}

	// The chain this request descends from, with ourselves appended. A
	// reference whose identity already appears in it would resubmit a
	// configuration that is parked waiting on us. Cloned so sibling
	// requests extending their own chains never share a backing array.
	chain := append(slices.Clone(b.request.Ancestry), b.cfg.Identity.Fingerprint())

	var submitErr error
	children := make([]<-chan *domain.BuildResult, 0, len(project.References))
	refs := make([]string, 0, len(project.References))
	for _, ref := range project.References {
		req := &domain.BuildRequest{
			Identity: domain.NewConfigurationIdentity(
				ref,
				b.cfg.Identity.ToolsVersion,
				b.cfg.Identity.GlobalProperties,
			),
			Ancestry: chain,
		}
		if slices.Contains(chain, req.Identity.Fingerprint()) {
			submitErr = zerr.With(
				zerr.With(domain.ErrCircularReference, "project", b.cfg.Identity.Path),
				"reference", req.Identity.Path,
			)
			break
		}
		done, err := b.submitter.SubmitChild(ctx, req)
		if err != nil {
			submitErr = zerr.Wrap(err, "failed to submit reference build")
			break
		}
		children = append(children, done)
		refs = append(refs, ref)
	}

	if len(children) == 0 {
		return b.classifySubmitError(ctx, submitErr)
	}

	b.setState(StateWaitingOnReferences)

	var eg errgroup.Group
	for i, done := range children {
		ref := refs[i]
		eg.Go(func() error {
			select {
			case res := <-done:
				if res.Aborted {
					return domain.ErrBuildAborted
				}
				if !res.Succeeded {
					err := zerr.New("referenced project build failed")
					if res.Err != nil {
						err = zerr.Wrap(res.Err, "referenced project build failed")
					}
					return zerr.With(err, "reference", ref)
				}
				return nil
			case <-b.cancel:
				return domain.ErrBuildAborted
			case <-b.abort:
				return domain.ErrBuildAborted
			case <-ctx.Done():
				return domain.ErrBuildAborted
			}
		})
	}

	// Wake ourselves when every child has been accounted for.
	collect := make(chan error, 1)
	go func() {
		collect <- eg.Wait()
		b.ContinueRequest()
	}()

	select {
	case <-b.resume:
	case <-b.cancel:
		b.setState(StateCancelling)
		return nil, true
	case <-b.abort:
		b.setState(StateCancelling)
		return nil, true
	case <-ctx.Done():
		b.setState(StateCancelling)
		return nil, true
	}

	b.setState(StateResuming)
	err := <-collect
	if errors.Is(err, domain.ErrBuildAborted) {
		return nil, true
	}
	if submitErr != nil {
		// Every already-submitted child has been collected; surface the
		// submit failure now.
		return b.classifySubmitError(ctx, submitErr)
	}
	return err, false
}

// classifySubmitError maps a child submission failure to the request's
// outcome. A submission refused because the session is winding down is
// an abort, not a build failure.
func (b *Builder) classifySubmitError(ctx context.Context, err error) (failure error, aborted bool) {
	if errors.Is(err, domain.ErrEngineStopped) || b.interrupted(ctx) {
		b.setState(StateCancelling)
		return nil, true
	}
	return err, false
}

// interrupted reports whether cancellation has already been signalled on
// any of the builder's stop channels.
func (b *Builder) interrupted(ctx context.Context) bool {
	select {
	case <-b.cancel:
		return true
	case <-b.abort:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// cancellableContext derives a context that ends when the request is
// cancelled or the session aborts, so task execution observes
// cancellation promptly even mid-target.
func (b *Builder) cancellableContext(ctx context.Context) (context.Context, func()) {
	buildCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	go func() {
		select {
		case <-b.cancel:
			b.setState(StateCancelling)
			cancel()
		case <-b.abort:
			b.setState(StateCancelling)
			cancel()
		case <-stopped:
		case <-buildCtx.Done():
		}
	}()
	return buildCtx, func() {
		close(stopped)
		cancel()
	}
}

func (b *Builder) abortResult(result *domain.BuildResult) *domain.BuildResult {
	result.Succeeded = false
	result.Aborted = true
	result.Err = domain.ErrBuildAborted
	return result
}
