package evaluator

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/anvil/internal/core/ports"
)

// NodeID is the unique identifier for the condition evaluator Graft node.
const NodeID graft.ID = "adapter.evaluator"

func init() {
	graft.Register(graft.Node[ports.ConditionEvaluator]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.ConditionEvaluator, error) {
			return New(), nil
		},
	})
}
