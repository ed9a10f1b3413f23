package asyncgrpc

import (
	"github.com/gogo/protobuf/proto"
	"google.golang.org/grpc/status"

	"github.com/estuary/asyncgrpc/tracing"
)

// Handler is implemented by user RPC handlers. Implementations embed
// HandlerBase and provide OnRequest; Initialize, OnReadsDone and
// OnFinish have no-op defaults.
//
// All callbacks of one RPC run serially on the RPC's event queue, in
// the order Initialize < OnRequest... <= OnReadsDone < OnFinish.
// OnRequest is called exactly once per incoming message, OnReadsDone at
// most once (when the client half-closes), and OnFinish exactly once
// before the RPC is destroyed. Handlers must not block indefinitely:
// doing so starves every other RPC bound to the same event queue.
type Handler interface {
	// Initialize is called once, before any message is read.
	Initialize()
	// OnRequest is called once per incoming request message.
	OnRequest(request proto.Message)
	// OnReadsDone is called once when the client half-closes.
	OnReadsDone()
	// OnFinish is called once, after the call has fully terminated.
	OnFinish()

	bind(rpc *Rpc, execCtx *ExecutionContext, span tracing.Span)
}

// HandlerBase provides the framework surface of a Handler. Embed it by
// value in handler implementations.
type HandlerBase struct {
	rpc     *Rpc
	execCtx *ExecutionContext
	span    tracing.Span
}

func (b *HandlerBase) bind(rpc *Rpc, execCtx *ExecutionContext, span tracing.Span) {
	b.rpc = rpc
	b.execCtx = execCtx
	b.span = span
}

// Initialize is a default no-op.
func (b *HandlerBase) Initialize() {}

// OnReadsDone is a default no-op.
func (b *HandlerBase) OnReadsDone() {}

// OnFinish is a default no-op.
func (b *HandlerBase) OnFinish() {}

// Send enqueues an outgoing response message. Messages are written to
// the transport in Send order. After Finish, Send is a logged no-op.
func (b *HandlerBase) Send(response proto.Message) {
	b.rpc.Write(response)
}

// Finish ends the RPC with the given terminal status. Queued responses
// are drained first unless SetSendUnfinishedWrites(false) was called.
// Repeated calls are logged and dropped.
func (b *HandlerBase) Finish(st *status.Status) {
	b.rpc.Finish(st)
}

// Writer returns a Writer weakly bound to this RPC, safe to use from
// any goroutine, including after the RPC has completed.
func (b *HandlerBase) Writer() Writer {
	return b.rpc.weakWriter()
}

// Context returns the server's shared execution context.
func (b *HandlerBase) Context() *ExecutionContext {
	return b.execCtx
}

// Span returns the RPC's trace span. It is a no-op span unless the
// server was built with tracing enabled.
func (b *HandlerBase) Span() tracing.Span {
	return b.span
}

// Rpc returns the underlying RPC, for advanced per-call configuration
// such as SetSendUnfinishedWrites.
func (b *HandlerBase) Rpc() *Rpc {
	return b.rpc
}
