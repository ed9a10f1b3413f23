package tracing

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNoopSpan(t *testing.T) {
	var span = NoopSpan()
	var child = span.CreateChildSpan("child")

	require.NotNil(t, child)
	require.IsType(t, noopSpan{}, child)

	// No-op spans absorb status and completion without effect.
	child.SetStatus(status.New(codes.OK, ""))
	child.End()
	span.End()
}

func TestNetTraceSpanLifecycle(t *testing.T) {
	var span = StartSpan("/test.Service/Method")

	var root, ok = span.(*netTraceSpan)
	require.True(t, ok)
	require.NotNil(t, root.tr)
	require.Equal(t, "/test.Service/Method", root.name)

	var child = span.CreateChildSpan("lookup")
	require.NotNil(t, child)
	require.NotSame(t, span, child)

	// The child is a live trace of its own, named under its parent.
	var childSpan = child.(*netTraceSpan)
	require.NotNil(t, childSpan.tr)
	require.NotEqual(t, root.tr, childSpan.tr)
	require.Equal(t, "/test.Service/Method/lookup", childSpan.name)

	child.SetStatus(status.New(codes.OK, ""))
	child.End()

	span.SetStatus(status.New(codes.Internal, "boom"))
	span.End()
}

func TestNetTraceChildOfChild(t *testing.T) {
	var span = StartSpan("/test.Service/Method")
	var child = span.CreateChildSpan("outer").CreateChildSpan("inner")

	require.Equal(t, "/test.Service/Method/outer/inner",
		child.(*netTraceSpan).name)
	child.End()
	span.End()
}
