package telemetry

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/anvil/internal/adapters/telemetry/progrock"
	"go.trai.ch/anvil/internal/core/ports"
)

// TracerNodeID is the unique identifier for the tracer Graft node. The
// default wiring is the no-op tracer; setting ANVIL_PROGRESS selects the
// progrock recorder with a live progress tape.
const TracerNodeID graft.ID = "adapter.tracer"

func init() {
	graft.Register(graft.Node[ports.Tracer]{
		ID:        TracerNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Tracer, error) {
			if os.Getenv("ANVIL_PROGRESS") != "" {
				return progrock.New(), nil
			}
			return NewNoOpTracer(), nil
		},
	})
}
