package scheduler

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/anvil/internal/adapters/config"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/anvil/internal/adapters/evaluator" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/anvil/internal/adapters/logger"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/anvil/internal/adapters/shell"     //nolint:depguard // Wired in engine wiring
	"go.trai.ch/anvil/internal/adapters/telemetry" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/anvil/internal/core/ports"
)

// NodeID is the unique identifier for the engine Graft node.
const NodeID graft.ID = "engine.scheduler"

func init() {
	graft.Register(graft.Node[*Engine]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			shell.NodeID,
			evaluator.NodeID,
			telemetry.TracerNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Engine, error) {
			loader, err := graft.Dep[ports.ProjectLoader](ctx)
			if err != nil {
				return nil, err
			}

			runner, err := graft.Dep[ports.TaskRunner](ctx)
			if err != nil {
				return nil, err
			}

			eval, err := graft.Dep[ports.ConditionEvaluator](ctx)
			if err != nil {
				return nil, err
			}

			tracer, err := graft.Dep[ports.Tracer](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return New(loader, runner, eval, tracer, log), nil
		},
	})
}
