package asyncgrpc

import (
	log "github.com/sirupsen/logrus"
)

// CompletionQueue delivers transport completion events to a single
// driver goroutine. Server RPCs are striped across the server's
// completion queues round-robin; the assignment is fixed for the RPC's
// lifetime.
type CompletionQueue struct {
	queue *fifo[*Event]
}

// NewCompletionQueue returns an idle CompletionQueue.
func NewCompletionQueue() *CompletionQueue {
	return &CompletionQueue{queue: newFifo[*Event]()}
}

// Push posts a completion event. Events posted after Shutdown are dropped.
func (cq *CompletionQueue) Push(event *Event) {
	cq.queue.push(event)
}

// Next blocks for the next completion event. It returns ok=false once
// the queue has been shut down and drained.
func (cq *CompletionQueue) Next() (*Event, bool) {
	return cq.queue.pop()
}

// Shutdown drains the queue and releases its driver.
func (cq *CompletionQueue) Shutdown() {
	cq.queue.close()
}

// Run is the driver loop. It must never block on user code and performs
// only O(1) work per event: it resolves the event's RPC and posts a
// closure onto the RPC's event queue, where the state machine runs.
func (cq *CompletionQueue) Run() {
	for {
		var event, ok = cq.Next()
		if !ok {
			log.Debug("completion queue drained, driver exiting")
			return
		}
		var rpc = event.Rpc
		rpc.eventQueue.Push(func() {
			rpc.service.handleEvent(event)
		})
	}
}
