// Package app implements the application layer for anvil.
package app

import (
	"context"
	"fmt"
	"sort"

	"go.trai.ch/anvil/internal/core/domain"
	"go.trai.ch/anvil/internal/core/ports"
	"go.trai.ch/anvil/internal/engine/scheduler"
	"go.trai.ch/zerr"
)

// BuildParams describes one top-level build invocation.
type BuildParams struct {
	ProjectFile      string
	Targets          []string
	GlobalProperties map[string]string
	ToolsVersion     string
}

// App represents the main application logic: it submits the top-level
// build request and reports the terminal result.
type App struct {
	engine *scheduler.Engine
	logger ports.Logger
}

// New creates a new App instance.
func New(engine *scheduler.Engine, logger ports.Logger) *App {
	return &App{
		engine: engine,
		logger: logger,
	}
}

// Run submits the build request described by params and waits for its
// terminal result. Context cancellation aborts the whole session; the
// request still terminates with an Aborted result.
func (a *App) Run(ctx context.Context, params BuildParams) error {
	req := &domain.BuildRequest{
		Identity: domain.NewConfigurationIdentity(
			params.ProjectFile,
			params.ToolsVersion,
			params.GlobalProperties,
		),
		Targets: params.Targets,
	}

	pending, err := a.engine.Submit(ctx, req)
	if err != nil {
		return zerr.Wrap(err, "failed to submit build request")
	}

	var result *domain.BuildResult
	select {
	case result = <-pending.Done:
	case <-ctx.Done():
		a.engine.Abort()
		result = <-pending.Done
	}

	// Child requests may still be draining after an abort.
	a.engine.Wait()

	a.report(result)

	switch {
	case result.Aborted:
		return domain.ErrBuildAborted
	case !result.Succeeded:
		if result.Err != nil {
			return result.Err
		}
		return domain.ErrBuildFailed
	default:
		return nil
	}
}

func (a *App) report(result *domain.BuildResult) {
	targets := result.TargetResults()
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].TargetName < targets[j].TargetName
	})
	for _, tr := range targets {
		a.logger.Info(fmt.Sprintf("%s: %s", tr.TargetName, tr.Code))
	}

	switch {
	case result.Aborted:
		a.logger.Warn("build aborted")
	case result.Succeeded:
		a.logger.Info("build succeeded")
	default:
		a.logger.Warn("build failed")
		if result.Err != nil {
			a.logger.Error(result.Err)
		}
	}
}
