package asyncgrpc

import (
	"sync"
	"sync/atomic"

	"github.com/gogo/protobuf/proto"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/estuary/asyncgrpc/tracing"
)

type rpcState int32

const (
	stateNew rpcState = iota
	stateReading
	stateProcessing
	stateWriting
	stateFinishing
	stateDone
)

func (s rpcState) String() string {
	switch s {
	case stateNew:
		return "NEW"
	case stateReading:
		return "READING"
	case stateProcessing:
		return "PROCESSING"
	case stateWriting:
		return "WRITING"
	case stateFinishing:
		return "FINISHING"
	case stateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

var nextRpcID uint64

// Rpc is one live server-side call. It tracks the call's state machine,
// its FIFO of pending outbound messages, and its transport stream.
// State transitions run exclusively on the RPC's event queue; transport
// goroutines only post completion events. The sole re-entry points from
// other goroutines are Write and Finish, which take the RPC lock, and
// are what a Writer's posted closures invoke.
type Rpc struct {
	id         uint64
	method     *Method
	service    *Service
	cq         *CompletionQueue
	eventQueue *EventQueue
	stream     grpc.ServerStream
	handler    Handler
	span       tracing.Span

	// finishCh releases the parked transport goroutine with the
	// terminal status. Buffered so that arming Finish never blocks the
	// event queue, even when the peer cancelled concurrently.
	finishCh chan *status.Status

	mu                   sync.Mutex
	state                rpcState
	nextRequest          proto.Message
	pendingWrites        []proto.Message
	writeInFlight        bool
	finishRequested      bool
	finishArmed          bool
	finishStatus         *status.Status
	sendUnfinishedWrites bool
}

// ID returns the RPC's unique identity.
func (r *Rpc) ID() uint64 { return r.id }

// Method returns the method this RPC was issued against.
func (r *Rpc) Method() *Method { return r.method }

// SetSendUnfinishedWrites controls the late-write policy at Finish: if
// true (the default), responses queued before Finish are drained to the
// transport before the terminal status is sent; if false, they are
// dropped once the in-flight write completes.
func (r *Rpc) SetSendUnfinishedWrites(send bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendUnfinishedWrites = send
}

func (r *Rpc) setState(s rpcState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
}

func (r *Rpc) logger() *log.Entry {
	return log.WithFields(log.Fields{"rpc": r.id, "method": r.method.FullName})
}

// Write enqueues a response message and arms a transport write if none
// is outstanding. Once the RPC is finishing it drops the message with a
// logged warning, so that late writes from user code are benign.
func (r *Rpc) Write(response proto.Message) {
	r.mu.Lock()
	if r.finishRequested || r.state >= stateFinishing {
		r.mu.Unlock()
		r.logger().Warn("dropping response written after Finish")
		return
	}
	r.pendingWrites = append(r.pendingWrites, response)
	// Single-response methods finish with OK once their one reply has
	// been written; streaming methods require an explicit Finish.
	if !r.method.Type.serverStreaming() {
		r.finishRequested = true
		r.finishStatus = status.New(codes.OK, "")
	}
	var arm proto.Message
	if !r.writeInFlight {
		r.writeInFlight = true
		r.state = stateWriting
		arm = r.pendingWrites[0]
	}
	r.mu.Unlock()

	if arm != nil {
		r.armWrite(arm)
	}
}

// Finish records the terminal status. If a write is in flight, the
// transport Finish is deferred until the write pipeline drains (or is
// dropped, per SetSendUnfinishedWrites). Repeated calls are dropped.
func (r *Rpc) Finish(st *status.Status) {
	r.mu.Lock()
	if r.finishRequested || r.state >= stateFinishing {
		r.mu.Unlock()
		r.logger().Warn("dropping repeated Finish of RPC")
		return
	}
	r.finishRequested = true
	r.finishStatus = st

	if r.writeInFlight {
		if !r.sendUnfinishedWrites && len(r.pendingWrites) > 1 {
			r.pendingWrites = r.pendingWrites[:1]
		}
		r.mu.Unlock()
		return // Deferred until the in-flight write completes.
	}
	r.mu.Unlock()
	r.armFinish(st)
}

// armRead launches a transport read of the next request message. At
// most one read is outstanding at any time.
func (r *Rpc) armRead() {
	var msg = r.method.NewRequest()
	r.mu.Lock()
	r.nextRequest = msg
	r.mu.Unlock()

	go func() {
		var err = r.stream.RecvMsg(msg)
		r.cq.Push(&Event{Kind: ReadEvent, Rpc: r, Ok: err == nil})
	}()
}

// armWrite launches a transport write of the message at the head of the
// pending queue. At most one write is outstanding at any time.
func (r *Rpc) armWrite(msg proto.Message) {
	go func() {
		var err = r.stream.SendMsg(msg)
		r.cq.Push(&Event{Kind: WriteEvent, Rpc: r, Ok: err == nil})
	}()
}

// armFinish releases the parked transport goroutine with the terminal
// status. Idempotent.
func (r *Rpc) armFinish(st *status.Status) {
	r.mu.Lock()
	if r.finishArmed {
		r.mu.Unlock()
		return
	}
	r.finishArmed = true
	r.finishRequested = true
	r.finishStatus = st
	r.state = stateFinishing
	r.mu.Unlock()

	r.span.SetStatus(st)
	r.finishCh <- st
}

// wait parks the transport goroutine of this call until the state
// machine arms Finish, or until the peer cancels. It posts the FINISH
// and DONE completions and returns the terminal status to gRPC.
func (r *Rpc) wait() error {
	var st *status.Status

	select {
	case st = <-r.finishCh:
		r.cq.Push(&Event{Kind: FinishEvent, Rpc: r, Ok: true})
	case <-r.stream.Context().Done():
		select {
		case st = <-r.finishCh:
			// Finish raced the cancellation; honor it.
			r.cq.Push(&Event{Kind: FinishEvent, Rpc: r, Ok: true})
		default:
			st = status.FromContextError(r.stream.Context().Err())
			r.cq.Push(&Event{Kind: FinishEvent, Rpc: r, Ok: false})
		}
	}
	r.cq.Push(&Event{Kind: DoneEvent, Rpc: r, Ok: true})

	return st.Err()
}

// handleRead processes a READ completion on the event queue.
func (r *Rpc) handleRead(ok bool) {
	r.mu.Lock()
	if r.state >= stateFinishing {
		r.mu.Unlock()
		return // Stale completion of a cancelled call.
	}
	var msg = r.nextRequest
	r.nextRequest = nil
	r.mu.Unlock()

	if ok {
		if r.method.Type.clientStreaming() {
			// Keep the read pipeline armed while the handler runs.
			r.armRead()
		} else {
			r.setState(stateProcessing)
		}
		r.handler.OnRequest(msg)
		return
	}

	if !r.method.Type.clientStreaming() {
		// Half-close is implicit for unary and server-streaming
		// methods; a failed read here is a broken call, which the
		// transport surfaces separately as a failed FINISH.
		r.logger().Debug("ignoring failed read of non-client-streaming RPC")
		return
	}
	r.setState(stateProcessing)
	r.handler.OnReadsDone()
}

// handleWrite processes a WRITE completion on the event queue.
func (r *Rpc) handleWrite(ok bool) {
	if !ok {
		r.mu.Lock()
		r.writeInFlight = false
		r.pendingWrites = nil
		r.mu.Unlock()
		r.logger().Debug("transport write failed, finishing RPC")
		r.armFinish(status.New(codes.Internal, "write failed"))
		return
	}

	r.mu.Lock()
	r.pendingWrites = r.pendingWrites[1:]

	var next proto.Message
	var finish *status.Status
	if len(r.pendingWrites) != 0 && (!r.finishRequested || r.sendUnfinishedWrites) {
		next = r.pendingWrites[0]
	} else if r.finishRequested {
		r.pendingWrites = nil
		r.writeInFlight = false
		finish = r.finishStatus
	} else {
		r.writeInFlight = false
		r.state = stateProcessing
	}
	r.mu.Unlock()

	if next != nil {
		r.armWrite(next)
	} else if finish != nil {
		r.armFinish(finish)
	}
}

// handleFinish processes a FINISH completion on the event queue. A
// failed FINISH means the peer cancelled or the transport broke with
// operations outstanding; the terminal status is synthesized from the
// stream context.
func (r *Rpc) handleFinish(ok bool) {
	r.mu.Lock()
	r.state = stateFinishing
	r.finishRequested = true
	var st = r.finishStatus
	var recordSpan = !r.finishArmed
	r.finishArmed = true

	if !ok && st == nil {
		if err := r.stream.Context().Err(); err != nil {
			st = status.FromContextError(err)
		} else {
			st = status.New(codes.Internal, "transport failure")
		}
		r.finishStatus = st
	} else if st == nil {
		st = status.New(codes.OK, "")
		r.finishStatus = st
	}
	r.mu.Unlock()

	if !ok {
		r.logger().WithField("status", st.Code()).Debug("RPC finished on broken transport")
	}
	if recordSpan {
		r.span.SetStatus(st)
	}
}

// terminalStatus returns the RPC's recorded terminal status, or OK.
func (r *Rpc) terminalStatus() *status.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finishStatus == nil {
		return status.New(codes.OK, "")
	}
	return r.finishStatus
}

func (r *Rpc) weakWriter() Writer {
	return Writer{service: r.service, id: r.id}
}

// Writer is a user-facing facade over an RPC which is safe to retain
// and use from any goroutine. It holds the RPC weakly, as a keyed
// lookup into the service's active set: once the RPC completes, all
// Writer operations return false without side effects. Successful
// operations are serialized through the RPC's event queue like any
// other handler work.
type Writer struct {
	service *Service
	id      uint64
}

// Write enqueues a response on the RPC. It reports whether the RPC was
// still live at the time of the call.
func (w Writer) Write(response proto.Message) bool {
	var rpc = w.service.lookupRpc(w.id)
	if rpc == nil {
		return false
	}
	rpc.eventQueue.Push(func() { rpc.Write(response) })
	return true
}

// Finish ends the RPC with the given status. It reports whether the
// RPC was still live at the time of the call.
func (w Writer) Finish(st *status.Status) bool {
	var rpc = w.service.lookupRpc(w.id)
	if rpc == nil {
		return false
	}
	rpc.eventQueue.Push(func() { rpc.Finish(st) })
	return true
}

// WritesDone ends the RPC with an OK status.
func (w Writer) WritesDone() bool {
	return w.Finish(status.New(codes.OK, ""))
}

func allocateRpcID() uint64 {
	return atomic.AddUint64(&nextRpcID, 1)
}
