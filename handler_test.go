package asyncgrpc_test

import (
	"testing"

	"github.com/gogo/protobuf/proto"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/estuary/asyncgrpc"
	"github.com/estuary/asyncgrpc/mathpb"
	"github.com/estuary/asyncgrpc/rpctest"
)

// writerCaptureHandler responds immediately and publishes its Writer,
// so tests can probe the weak handle after the RPC has completed.
type writerCaptureHandler struct {
	asyncgrpc.HandlerBase
	writers chan<- asyncgrpc.Writer
}

func (h *writerCaptureHandler) OnRequest(request proto.Message) {
	h.writers <- h.Writer()
	var input = request.(*mathpb.GetEchoRequest).Input
	h.Send(&mathpb.GetEchoResponse{Output: input})
}

func TestWriterIsNoopAfterFinish(t *testing.T) {
	var writers = make(chan asyncgrpc.Writer, 1)
	var server = rpctest.NewServer(t, mathpb.GetEchoMethod(),
		func() asyncgrpc.Handler {
			return &writerCaptureHandler{writers: writers}
		}, nil)
	defer server.Close()

	server.SendWrite(t, &mathpb.GetEchoRequest{Input: 7})
	server.WaitForFinish(t)

	require.Equal(t, int32(7), server.Response().(*mathpb.GetEchoResponse).Output)

	// The RPC has completed: the weak handle no longer resolves.
	var writer = <-writers
	require.False(t, writer.Write(&mathpb.GetEchoResponse{Output: 8}))
	require.False(t, writer.Finish(status.New(codes.OK, "")))
	require.False(t, writer.WritesDone())
}

// countingSumHandler accumulates streamed inputs without an execution
// context, for callback ordering tests.
type countingSumHandler struct {
	asyncgrpc.HandlerBase
	sum int32
}

func (h *countingSumHandler) OnRequest(request proto.Message) {
	h.sum += request.(*mathpb.GetSumRequest).Input
}

func (h *countingSumHandler) OnReadsDone() {
	h.Send(&mathpb.GetSumResponse{Output: h.sum})
}

// TestHandlerCallbackOrdering verifies the per-RPC callback protocol:
// one OnRequest per message, then OnReadsDone exactly once, then
// OnFinish exactly once, in order.
func TestHandlerCallbackOrdering(t *testing.T) {
	var server = rpctest.NewServer(t, mathpb.GetSumMethod(),
		func() asyncgrpc.Handler { return new(countingSumHandler) }, nil)
	defer server.Close()

	for i := int32(1); i <= 3; i++ {
		server.SendWrite(t, &mathpb.GetSumRequest{Input: i})
	}
	server.SendWritesDone(t)
	server.SendFinish(t)

	require.Equal(t, int32(6), server.Response().(*mathpb.GetSumResponse).Output)
}

// lateWriteHandler finishes and then keeps writing; the late writes
// must be dropped without effect.
type lateWriteHandler struct {
	asyncgrpc.HandlerBase
}

func (h *lateWriteHandler) OnRequest(request proto.Message) {
	h.Send(&mathpb.GetEchoResponse{Output: request.(*mathpb.GetEchoRequest).Input})
	// Dropped: the single response already implied Finish.
	h.Send(&mathpb.GetEchoResponse{Output: -1})
	h.Finish(status.New(codes.Internal, "dropped"))
}

func TestSendAndFinishAfterFinishAreDropped(t *testing.T) {
	var server = rpctest.NewServer(t, mathpb.GetEchoMethod(),
		func() asyncgrpc.Handler { return new(lateWriteHandler) }, nil)
	defer server.Close()

	server.SendWrite(t, &mathpb.GetEchoRequest{Input: 42})
	server.WaitForFinish(t)
	require.Equal(t, int32(42), server.Response().(*mathpb.GetEchoResponse).Output)
}
