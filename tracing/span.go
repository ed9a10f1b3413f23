// Package tracing defines the minimal span interface the RPC framework
// reports into, plus a golang.org/x/net/trace backed implementation.
package tracing

import (
	"golang.org/x/net/trace"
	"google.golang.org/grpc/status"
)

// Span is one traced operation. The framework starts a span per RPC when
// the RPC is created, sets its terminal status, and ends it when the RPC
// is destroyed.
type Span interface {
	// CreateChildSpan starts a span subordinate to this one.
	CreateChildSpan(name string) Span
	// SetStatus records the operation's terminal status.
	SetStatus(st *status.Status)
	// End completes the span. No other method may be called afterwards.
	End()
}

// SpanFactory produces the root span of an RPC, named by the method's
// fully qualified name.
type SpanFactory func(name string) Span

type noopSpan struct{}

// NoopSpan returns a span that discards everything.
func NoopSpan() Span { return noopSpan{} }

func (noopSpan) CreateChildSpan(string) Span { return noopSpan{} }
func (noopSpan) SetStatus(*status.Status)    {}
func (noopSpan) End()                        {}

const traceFamily = "asyncgrpc"

type netTraceSpan struct {
	name string
	tr   trace.Trace
}

// StartSpan opens a span backed by golang.org/x/net/trace, visible on
// the /debug/requests page.
func StartSpan(name string) Span {
	return &netTraceSpan{name: name, tr: trace.New(traceFamily, name)}
}

func (s *netTraceSpan) CreateChildSpan(name string) Span {
	var child = &netTraceSpan{
		name: s.name + "/" + name,
		tr:   trace.New(traceFamily, s.name+"/"+name),
	}
	s.tr.LazyPrintf("child span %s", name)
	return child
}

func (s *netTraceSpan) SetStatus(st *status.Status) {
	s.tr.LazyPrintf("status: %s (%s)", st.Code(), st.Message())
	if st.Code() != 0 {
		s.tr.SetError()
	}
}

func (s *netTraceSpan) End() {
	s.tr.Finish()
}
