// Package scheduler implements the build engine: the owner of one build
// session's caches and in-flight requests. It dispatches each submitted
// request to a request builder, broadcasts aborts, and delivers every
// request's terminal result exactly once.
package scheduler

import (
	"context"
	"sync"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/anvil/internal/core/ports"
	"go.trai.ch/anvil/internal/engine/configcache"
	"go.trai.ch/anvil/internal/engine/requestbuilder"
	"go.trai.ch/anvil/internal/engine/resultscache"
	"go.trai.ch/anvil/internal/engine/targetbuilder"
)

// Pending is the future for a submitted request. Done delivers the
// terminal BuildResult exactly once; the channel is buffered so delivery
// never blocks on a slow caller.
type Pending struct {
	RequestID int
	Done      <-chan *domain.BuildResult
}

// Engine schedules build requests for one build session. Each request
// runs on its own goroutine; parking while waiting on child requests
// costs a goroutine, not a pool thread, so deep reference chains cannot
// starve the scheduler.
type Engine struct {
	configs *configcache.Cache
	results *resultscache.Cache
	loader  ports.ProjectLoader
	targets *targetbuilder.Builder
	tracer  ports.Tracer
	logger  ports.Logger

	mu       sync.Mutex
	nextID   int
	inflight map[int]*requestbuilder.Builder
	stopped  bool

	abortOnce sync.Once
	abort     chan struct{}
	wg        sync.WaitGroup
}

var _ requestbuilder.ChildSubmitter = (*Engine)(nil)

// New creates an engine with fresh session-scoped caches.
func New(
	loader ports.ProjectLoader,
	runner ports.TaskRunner,
	evaluator ports.ConditionEvaluator,
	tracer ports.Tracer,
	logger ports.Logger,
) *Engine {
	configs := configcache.New()
	results := resultscache.New()
	exec := targetbuilder.NewTaskExecutor(runner, evaluator, logger)
	return &Engine{
		configs:  configs,
		results:  results,
		loader:   loader,
		targets:  targetbuilder.New(results, exec, evaluator, tracer, logger),
		tracer:   tracer,
		logger:   logger,
		inflight: make(map[int]*requestbuilder.Builder),
		abort:    make(chan struct{}),
	}
}

// Submit resolves the request's configuration, assigns it a request
// builder, and starts it. The returned Pending's Done channel receives
// the terminal result.
func (e *Engine) Submit(ctx context.Context, req *domain.BuildRequest) (*Pending, error) {
	cfg, err := e.resolveConfiguration(req)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil, domain.ErrEngineStopped
	}
	e.nextID++
	id := e.nextID
	rb := requestbuilder.New(id, req, cfg, e.loader, e.targets, e.tracer, e.logger, e, e.abort)
	e.inflight[id] = rb
	e.wg.Add(1)
	e.mu.Unlock()

	done := make(chan *domain.BuildResult, 1)
	go func() {
		defer e.wg.Done()
		res := rb.Build(ctx)
		e.mu.Lock()
		delete(e.inflight, id)
		e.mu.Unlock()
		done <- res
	}()

	return &Pending{RequestID: id, Done: done}, nil
}

// SubmitChild implements requestbuilder.ChildSubmitter.
func (e *Engine) SubmitChild(ctx context.Context, req *domain.BuildRequest) (<-chan *domain.BuildResult, error) {
	p, err := e.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return p.Done, nil
}

// Abort broadcasts cancellation to every in-flight request and rejects
// further submissions. In-flight requests terminate with Aborted results
// through their normal delivery path.
func (e *Engine) Abort() {
	e.mu.Lock()
	e.stopped = true
	builders := make([]*requestbuilder.Builder, 0, len(e.inflight))
	for _, rb := range e.inflight {
		builders = append(builders, rb)
	}
	e.mu.Unlock()

	e.abortOnce.Do(func() {
		close(e.abort)
	})
	for _, rb := range builders {
		rb.CancelRequest()
	}
}

// Wait blocks until every in-flight request has delivered its result.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// InFlight returns the number of requests currently being built.
// Diagnostic only.
func (e *Engine) InFlight() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inflight)
}

// Configurations exposes the session's configuration cache.
func (e *Engine) Configurations() *configcache.Cache {
	return e.configs
}

// Results exposes the session's results cache.
func (e *Engine) Results() *resultscache.Cache {
	return e.results
}

func (e *Engine) resolveConfiguration(req *domain.BuildRequest) (*domain.Configuration, error) {
	if req.ConfigurationID != 0 {
		return e.configs.Get(req.ConfigurationID)
	}
	cfg, _ := e.configs.GetOrCreate(req.Identity)
	return cfg, nil
}
