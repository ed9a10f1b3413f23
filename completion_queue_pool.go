package asyncgrpc

import (
	"fmt"
	"math/rand"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ClientEventKind enumerates completions of asynchronous client calls.
type ClientEventKind int32

const (
	ClientWriteEvent ClientEventKind = iota
	ClientReadEvent
	ClientFinishEvent
)

// ClientEvent is one client-side transport completion.
type ClientEvent struct {
	Kind   ClientEventKind
	Client clientEventHandler
	Ok     bool
}

type clientEventHandler interface {
	HandleEvent(event ClientEvent)
}

// ClientCompletionQueue delivers client completion events to one driver
// goroutine, which dispatches them to their AsyncClient.
type ClientCompletionQueue struct {
	queue *fifo[ClientEvent]
}

func newClientCompletionQueue() *ClientCompletionQueue {
	return &ClientCompletionQueue{queue: newFifo[ClientEvent]()}
}

// Push posts a completion event.
func (cq *ClientCompletionQueue) Push(event ClientEvent) {
	cq.queue.push(event)
}

func (cq *ClientCompletionQueue) run() {
	for {
		var event, ok = cq.queue.pop()
		if !ok {
			return
		}
		event.Client.HandleEvent(event)
	}
}

const defaultNumberCompletionQueues = 2

// completionQueuePool is the process-wide pool driving asynchronous
// clients. It is initialized lazily on first use; its size cannot
// change afterwards.
type completionQueuePool struct {
	mu          sync.Mutex
	initialized bool
	number      int
	queues      []*ClientCompletionQueue
	drivers     sync.WaitGroup
}

var clientPool = &completionQueuePool{number: defaultNumberCompletionQueues}

// SetNumberCompletionQueues configures the size of the process-wide
// client completion queue pool. It fails once the pool has been
// initialized by a client.
func SetNumberCompletionQueues(number int) error {
	clientPool.mu.Lock()
	defer clientPool.mu.Unlock()
	if clientPool.initialized {
		return fmt.Errorf("cannot change number of completion queues after initialization")
	} else if number <= 0 {
		return fmt.Errorf("number of completion queues must be positive, got %d", number)
	}
	clientPool.number = number
	return nil
}

// GetCompletionQueue lazily initializes the pool and returns one of its
// completion queues at random.
func GetCompletionQueue() *ClientCompletionQueue {
	clientPool.mu.Lock()
	defer clientPool.mu.Unlock()
	clientPool.initializeLocked()
	return clientPool.queues[rand.Intn(len(clientPool.queues))]
}

// ShutdownCompletionQueuePool stops the pool's drivers and resets it to
// its uninitialized state. Outstanding async clients must have
// completed before shutdown.
func ShutdownCompletionQueuePool() {
	log.Info("shutting down client completion queue pool")
	clientPool.mu.Lock()
	for _, cq := range clientPool.queues {
		cq.queue.close()
	}
	clientPool.queues = nil
	clientPool.initialized = false
	clientPool.mu.Unlock()

	clientPool.drivers.Wait()
}

func (p *completionQueuePool) initializeLocked() {
	if p.initialized {
		return
	}
	p.queues = make([]*ClientCompletionQueue, p.number)
	for i := range p.queues {
		var cq = newClientCompletionQueue()
		p.queues[i] = cq
		p.drivers.Add(1)
		go func() {
			defer p.drivers.Done()
			cq.run()
		}()
	}
	p.initialized = true
}
