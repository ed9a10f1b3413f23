package asyncgrpc

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	log "github.com/sirupsen/logrus"
	"go.gazette.dev/core/task"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/status"

	"github.com/estuary/asyncgrpc/tracing"
)

const (
	defaultNumGrpcThreads  = 2
	defaultNumEventThreads = 2
	defaultServerAddress   = "localhost:50051"
)

// Builder accumulates server configuration and registered methods.
type Builder struct {
	address         string
	numGrpcThreads  int
	numEventThreads int
	creds           credentials.TransportCredentials
	selector        EventQueueSelector
	tracingEnabled  bool
	services        map[string]map[string]*Method
}

// NewServerBuilder returns a Builder with default pool sizes.
func NewServerBuilder() *Builder {
	return &Builder{
		address:         defaultServerAddress,
		numGrpcThreads:  defaultNumGrpcThreads,
		numEventThreads: defaultNumEventThreads,
		services:        make(map[string]map[string]*Method),
	}
}

// SetServerAddress sets the "host:port" the server binds. Port zero
// binds an ephemeral port, exposed through Server.Endpoint.
func (b *Builder) SetServerAddress(address string) *Builder {
	b.address = address
	return b
}

// SetNumGrpcThreads sets the number of completion queues, each drained
// by one driver goroutine.
func (b *Builder) SetNumGrpcThreads(n int) *Builder {
	b.numGrpcThreads = n
	return b
}

// SetNumEventThreads sets the number of event queues, each drained by
// one dedicated goroutine.
func (b *Builder) SetNumEventThreads(n int) *Builder {
	b.numEventThreads = n
	return b
}

// SetServerCredentials sets optional transport credentials.
func (b *Builder) SetServerCredentials(creds credentials.TransportCredentials) *Builder {
	b.creds = creds
	return b
}

// SetEventQueueSelector overrides the round-robin binding of new RPCs
// to event queues.
func (b *Builder) SetEventQueueSelector(selector EventQueueSelector) *Builder {
	b.selector = selector
	return b
}

// SetTracingEnabled toggles per-RPC trace spans.
func (b *Builder) SetTracingEnabled(enabled bool) *Builder {
	b.tracingEnabled = enabled
	return b
}

// Register adds a method, which must carry a handler factory. Methods
// are grouped into services by their parsed service name.
func (b *Builder) Register(method Method) error {
	if err := method.validate(); err != nil {
		return err
	} else if method.NewHandler == nil {
		return fmt.Errorf("method %s: missing handler factory", method.FullName)
	}
	var service, name, _ = ParseMethodFullName(method.FullName)
	if b.services[service] == nil {
		b.services[service] = make(map[string]*Method)
	}
	if _, ok := b.services[service][name]; ok {
		return fmt.Errorf("method %s is already registered", method.FullName)
	}
	var m = method
	b.services[service][name] = &m
	return nil
}

// MustRegister is Register, panicking on error.
func (b *Builder) MustRegister(method Method) {
	if err := b.Register(method); err != nil {
		panic(err)
	}
}

// Build produces a Server from the accumulated configuration.
func (b *Builder) Build() (*Server, error) {
	if b.numGrpcThreads < 1 || b.numEventThreads < 1 {
		return nil, fmt.Errorf("thread pool sizes must be at least 1")
	}
	var server = &Server{
		address:         b.address,
		numGrpcThreads:  b.numGrpcThreads,
		numEventThreads: b.numEventThreads,
		creds:           b.creds,
		selector:        b.selector,
		services:        make(map[string]*Service),
	}
	if b.tracingEnabled {
		server.spanFactory = tracing.StartSpan
	}
	for name, methods := range b.services {
		server.services[name] = NewService(name, methods)
	}
	return server, nil
}

// Server is the top-level lifecycle object: it owns the listener, the
// completion queue and event queue pools, and the registered services.
type Server struct {
	address         string
	numGrpcThreads  int
	numEventThreads int
	creds           credentials.TransportCredentials
	selector        EventQueueSelector
	spanFactory     tracing.SpanFactory

	services map[string]*Service
	execCtx  *ExecutionContext

	mu       sync.Mutex
	started  bool
	listener net.Listener

	grpcServer  *grpc.Server
	cqs         []*CompletionQueue
	eventQueues []*EventQueue
	tasks       *task.Group

	nextCq uint32
	nextEq uint32
}

// SetExecutionContext installs the user state object shared by every
// handler. It must be set before Start.
func (s *Server) SetExecutionContext(execCtx *ExecutionContext) {
	s.execCtx = execCtx
}

// Context returns the server's shared execution context.
func (s *Server) Context() *ExecutionContext {
	return s.execCtx
}

// Endpoint returns the bound listener address. Valid after Start.
func (s *Server) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Start binds the listener, brings up the completion queue and event
// queue pools, and begins serving. It fails if already running, and
// pool sizes cannot be changed afterwards.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("server is already running")
	}

	var listener, err = net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.address, err)
	}
	s.listener = listener
	s.tasks = task.NewGroup(context.Background())

	s.cqs = make([]*CompletionQueue, s.numGrpcThreads)
	for i := range s.cqs {
		var cq = NewCompletionQueue()
		s.cqs[i] = cq
		s.tasks.Queue(fmt.Sprintf("completion-queue-%d", i), func() error {
			cq.Run()
			return nil
		})
	}
	s.eventQueues = make([]*EventQueue, s.numEventThreads)
	for i := range s.eventQueues {
		var eq = NewEventQueue()
		s.eventQueues[i] = eq
		s.tasks.Queue(fmt.Sprintf("event-queue-%d", i), func() error {
			eq.Run()
			return nil
		})
	}

	var opts = []grpc.ServerOption{
		grpc.ForceServerCodec(protoCodec{}),
		grpc.UnknownServiceHandler(s.handleStream),
		grpc.StreamInterceptor(grpc_prometheus.StreamServerInterceptor),
	}
	if s.creds != nil {
		opts = append(opts, grpc.Creds(s.creds))
	}
	s.grpcServer = grpc.NewServer(opts...)

	for _, service := range s.services {
		service.startServing(s.execCtx, s.spanFactory)
	}

	var grpcServer = s.grpcServer
	s.tasks.Queue("grpc-serve", func() error {
		if err := grpcServer.Serve(listener); err != nil && err != grpc.ErrServerStopped {
			return fmt.Errorf("serving gRPC: %w", err)
		}
		return nil
	})
	s.tasks.GoRun()
	s.started = true

	log.WithFields(log.Fields{
		"endpoint":     listener.Addr().String(),
		"grpcThreads":  s.numGrpcThreads,
		"eventThreads": s.numEventThreads,
	}).Info("server started")
	return nil
}

// Shutdown is a total barrier: it stops the listener, waits for every
// live RPC to reach DONE, tears down both pools, and joins their
// goroutines. No handler code executes after it returns.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	// Stop accepting and wait for in-flight transport goroutines.
	s.grpcServer.GracefulStop()

	// Wait until every service has observed DONE for all of its RPCs.
	for _, service := range s.services {
		service.stopServing()
	}

	for _, eq := range s.eventQueues {
		eq.Close()
	}
	for _, cq := range s.cqs {
		cq.Shutdown()
	}
	if err := s.tasks.Wait(); err != nil {
		log.WithField("err", err).Warn("server task failed during shutdown")
	}
	log.Info("server stopped")
}

// handleStream adapts an incoming gRPC call of any shape into the
// framework: it resolves the method, stripes the RPC onto a completion
// queue and an event queue, posts NEW_CONNECTION, and parks until the
// state machine finishes the call.
func (s *Server) handleStream(_ interface{}, stream grpc.ServerStream) error {
	var fullName, ok = grpc.MethodFromServerStream(stream)
	if !ok {
		return status.Error(codes.Internal, "malformed stream: no method name")
	}
	serviceName, methodName, err := ParseMethodFullName(fullName)
	if err != nil {
		return status.Errorf(codes.Unimplemented, "malformed method name %q", fullName)
	}
	var service = s.services[serviceName]
	if service == nil {
		return status.Errorf(codes.Unimplemented, "unknown service %s", serviceName)
	}
	var method = service.methods[methodName]
	if method == nil {
		return status.Errorf(codes.Unimplemented, "unknown method %s", fullName)
	}

	var cq = s.pickCompletionQueue()
	var eq = s.pickEventQueue()

	rpc, err := service.newRpc(method, cq, eq, stream)
	if err != nil {
		return status.Error(codes.Unavailable, "server is shutting down")
	}
	cq.Push(&Event{Kind: NewConnectionEvent, Rpc: rpc, Ok: true})

	return rpc.wait()
}

// pickCompletionQueue stripes new RPCs across the pool round-robin.
// The selection is fixed for the RPC's lifetime.
func (s *Server) pickCompletionQueue() *CompletionQueue {
	var n = atomic.AddUint32(&s.nextCq, 1)
	return s.cqs[int(n-1)%len(s.cqs)]
}

func (s *Server) pickEventQueue() *EventQueue {
	if s.selector != nil {
		return s.selector(s.eventQueues)
	}
	var n = atomic.AddUint32(&s.nextEq, 1)
	return s.eventQueues[int(n-1)%len(s.eventQueues)]
}
