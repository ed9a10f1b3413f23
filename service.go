package asyncgrpc

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/estuary/asyncgrpc/tracing"
)

// Service dispatches the methods of one RPC service. It owns the set
// of live RPCs issued against the service and routes completion events
// to their state machines. Mutation of the active set happens only
// under the service lock, which is never held while user code runs.
type Service struct {
	name    string
	methods map[string]*Method

	mu           sync.Mutex
	activeRpcs   map[uint64]*Rpc
	shuttingDown bool
	drained      *sync.Cond

	execCtx     *ExecutionContext
	spanFactory tracing.SpanFactory
}

// NewService builds a Service from its fully qualified name and method
// map, keyed by bare method name.
func NewService(name string, methods map[string]*Method) *Service {
	var s = &Service{
		name:       name,
		methods:    methods,
		activeRpcs: make(map[uint64]*Rpc),
	}
	s.drained = sync.NewCond(&s.mu)
	return s
}

// Name returns the service's fully qualified name.
func (s *Service) Name() string { return s.name }

// startServing arms the service for incoming calls with the server's
// execution context and span factory.
func (s *Service) startServing(execCtx *ExecutionContext, spanFactory tracing.SpanFactory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.execCtx = execCtx
	s.spanFactory = spanFactory
	s.shuttingDown = false
}

// stopServing refuses new RPCs and blocks until every live RPC of the
// service has reached DONE. The server never tears down queues while an
// RPC is still pending.
func (s *Service) stopServing() {
	s.mu.Lock()
	s.shuttingDown = true
	for len(s.activeRpcs) != 0 {
		s.drained.Wait()
	}
	s.mu.Unlock()

	log.WithField("service", s.name).Info("service drained")
}

// newRpc creates a live RPC for an incoming call and inserts it into
// the active set. It fails when the service is shutting down.
func (s *Service) newRpc(method *Method, cq *CompletionQueue, eq *EventQueue, stream grpc.ServerStream) (*Rpc, error) {
	var span = tracing.NoopSpan()
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		return nil, fmt.Errorf("service %s is shutting down", s.name)
	}
	if s.spanFactory != nil {
		span = s.spanFactory(method.FullName)
	}
	var rpc = &Rpc{
		id:                   allocateRpcID(),
		method:               method,
		service:              s,
		cq:                   cq,
		eventQueue:           eq,
		stream:               stream,
		span:                 span,
		finishCh:             make(chan *status.Status, 1),
		sendUnfinishedWrites: true,
	}
	s.activeRpcs[rpc.id] = rpc
	s.mu.Unlock()

	activeRpcsGauge.WithLabelValues(s.name).Inc()
	return rpc, nil
}

// lookupRpc resolves an RPC by identity, or nil once it has completed.
func (s *Service) lookupRpc(id uint64) *Rpc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeRpcs[id]
}

func (s *Service) removeRpc(rpc *Rpc) {
	s.mu.Lock()
	delete(s.activeRpcs, rpc.id)
	if len(s.activeRpcs) == 0 {
		s.drained.Broadcast()
	}
	s.mu.Unlock()

	activeRpcsGauge.WithLabelValues(s.name).Dec()
}

// handleEvent routes one completion event to the RPC's state machine.
// It runs on the RPC's event queue.
func (s *Service) handleEvent(event *Event) {
	switch event.Kind {
	case NewConnectionEvent:
		s.handleNewConnection(event.Rpc, event.Ok)
	case ReadEvent:
		event.Rpc.handleRead(event.Ok)
	case WriteEvent:
		event.Rpc.handleWrite(event.Ok)
	case FinishEvent:
		event.Rpc.handleFinish(event.Ok)
	case DoneEvent:
		s.handleDone(event.Rpc, event.Ok)
	default:
		log.WithField("kind", event.Kind).Error("unhandled event kind")
	}
}

func (s *Service) handleNewConnection(rpc *Rpc, ok bool) {
	if !ok {
		s.removeRpc(rpc)
		return
	}
	rpcsStartedCounter.WithLabelValues(s.name, rpc.method.ShortName()).Inc()

	rpc.handler = rpc.method.NewHandler()
	rpc.handler.bind(rpc, s.execCtx, rpc.span)
	rpc.handler.Initialize()
	rpc.setState(stateReading)
	rpc.armRead()
}

func (s *Service) handleDone(rpc *Rpc, _ bool) {
	rpc.setState(stateDone)
	// Remove before OnFinish so that Writers observe a dead RPC as soon
	// as the final callback has run.
	s.removeRpc(rpc)
	rpc.handler.OnFinish()
	rpc.span.End()

	rpcsHandledCounter.WithLabelValues(
		s.name, rpc.method.ShortName(), rpc.terminalStatus().Code().String()).Inc()
}
