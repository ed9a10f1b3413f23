// Package asyncgrpc is an asynchronous RPC framework layered over gRPC.
//
// The server multiplexes many concurrent RPCs across a small pool of
// goroutines by driving each RPC through an explicit state machine.
// Transport completions arrive on completion queues, each drained by one
// driver goroutine which does O(1) work per event: it resolves the event
// to its RPC and posts a closure onto the RPC's assigned event queue.
// Event queues are drained serially by dedicated goroutines, so the
// user-visible callbacks of a given RPC never overlap and never block
// transport progress.
//
// Handlers implement OnRequest / OnReadsDone / OnFinish and respond via
// Send and Finish. A Writer obtained from a handler holds only a weak
// handle on its RPC: writes from foreign goroutines after the RPC has
// completed are silent no-ops.
//
// Two client flavors are provided: a blocking Client with pluggable
// retry for unary calls, and an AsyncClient driven by a process-wide
// completion queue pool.
package asyncgrpc
