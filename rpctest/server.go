// Package rpctest provides a single-method test server which lets
// handler tests await the completion of individual handler callbacks.
package rpctest

import (
	"testing"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/estuary/asyncgrpc"
)

// HandlerEvent identifies a completed handler callback.
type HandlerEvent int

const (
	OnRequestEvent HandlerEvent = iota
	OnReadsDoneEvent
	OnFinishEvent
)

const eventTimeout = 10 * time.Second

// Server hosts one method under test together with a blocking client,
// and surfaces the handler's callback completions as awaitable events.
type Server struct {
	server *asyncgrpc.Server
	conn   *grpc.ClientConn
	client *asyncgrpc.Client
	events chan HandlerEvent
}

// NewServer starts a server for the given method and handler factory
// on an ephemeral port, and connects a client to it.
func NewServer(t *testing.T, method asyncgrpc.Method, newHandler func() asyncgrpc.Handler, execCtx *asyncgrpc.ExecutionContext) *Server {
	var s = &Server{events: make(chan HandlerEvent, 64)}

	var builder = asyncgrpc.NewServerBuilder().
		SetServerAddress("localhost:0").
		SetNumGrpcThreads(1).
		SetNumEventThreads(1)
	builder.MustRegister(method.WithHandler(func() asyncgrpc.Handler {
		return &wrapper{Handler: newHandler(), events: s.events}
	}))

	var server, err = builder.Build()
	require.NoError(t, err)
	if execCtx != nil {
		server.SetExecutionContext(execCtx)
	}
	require.NoError(t, server.Start())

	conn, err := asyncgrpc.NewChannel(server.Endpoint(), nil)
	require.NoError(t, err)

	s.server = server
	s.conn = conn
	s.client = asyncgrpc.NewClient(conn, method)
	return s
}

// SendWrite issues one request message and waits for the handler's
// OnRequest to complete.
func (s *Server) SendWrite(t *testing.T, request proto.Message) {
	require.NoError(t, s.client.Write(request))
	s.waitFor(t, OnRequestEvent)
}

// SendWritesDone half-closes the stream and waits for the handler's
// OnReadsDone to complete.
func (s *Server) SendWritesDone(t *testing.T) {
	require.NoError(t, s.client.StreamWritesDone())
	s.waitFor(t, OnReadsDoneEvent)
}

// SendFinish finishes the stream and waits for the handler's OnFinish
// to complete.
func (s *Server) SendFinish(t *testing.T) {
	require.NoError(t, s.client.StreamFinish())
	s.waitFor(t, OnFinishEvent)
}

// WaitForFinish awaits the handler's OnFinish without driving the
// client, for unary calls which finish on their own.
func (s *Server) WaitForFinish(t *testing.T) {
	s.waitFor(t, OnFinishEvent)
}

// Client returns the blocking client bound to the method under test.
func (s *Server) Client() *asyncgrpc.Client { return s.client }

// Response returns the final response observed by the client.
func (s *Server) Response() proto.Message { return s.client.Response() }

// Close shuts the server down.
func (s *Server) Close() {
	_ = s.conn.Close()
	s.server.Shutdown()
}

func (s *Server) waitFor(t *testing.T, expect HandlerEvent) {
	select {
	case actual := <-s.events:
		require.Equal(t, expect, actual)
	case <-time.After(eventTimeout):
		t.Fatalf("timed out waiting for handler event %v", expect)
	}
}

// wrapper decorates a Handler, reporting the completion of each
// user-visible callback.
type wrapper struct {
	asyncgrpc.Handler
	events chan<- HandlerEvent
}

func (w *wrapper) OnRequest(request proto.Message) {
	w.Handler.OnRequest(request)
	w.events <- OnRequestEvent
}

func (w *wrapper) OnReadsDone() {
	w.Handler.OnReadsDone()
	w.events <- OnReadsDoneEvent
}

func (w *wrapper) OnFinish() {
	w.Handler.OnFinish()
	w.events <- OnFinishEvent
}
