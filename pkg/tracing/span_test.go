package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "index.build", "run-1")
	assert.Same(t, root, FromContext(ctx))

	childCtx, child := StartChildSpan(ctx, "merge")
	assert.Equal(t, "run-1", child.TraceID)
	assert.Same(t, child, FromContext(childCtx))
	child.SetAttr("terms", 3)
	child.End()
	first := child.Duration
	child.End()
	assert.Equal(t, first, child.Duration)
	root.End()

	var buf bytes.Buffer
	root.log(slog.New(slog.NewJSONHandler(&buf, nil)), root.Name)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &rec))
	assert.Equal(t, "index.build/merge", rec["span"])
	assert.Equal(t, "run-1", rec["trace_id"])
	assert.Equal(t, float64(3), rec["terms"])
}

func TestChildWithoutParent(t *testing.T) {
	_, s := StartChildSpan(context.Background(), "orphan")
	assert.Empty(t, s.TraceID)
	assert.Nil(t, FromContext(context.Background()))
}
