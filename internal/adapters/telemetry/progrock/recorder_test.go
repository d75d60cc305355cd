package progrock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vito/progrock"

	progrockadapter "go.trai.ch/anvil/internal/adapters/telemetry/progrock"
)

func TestRecorder_SpanLifecycle(t *testing.T) {
	tape := progrock.NewTape()
	r := progrockadapter.NewRecorder(tape)

	ctx := context.Background()
	r.EmitPlan(ctx, []string{"Compile", "Link"})

	_, span := r.Start(ctx, "Compile")
	n, err := span.Write([]byte("compiling\n"))
	require.NoError(t, err)
	assert.Equal(t, len("compiling\n"), n)
	span.SetAttribute("objects", 3)
	span.End()

	_, failed := r.Start(ctx, "Link")
	failed.RecordError(errors.New("undefined symbol"))
	failed.End()

	_, cached := r.Start(ctx, "Compile")
	cached.Cached()
	cached.End()

	require.NoError(t, r.Close())
}
