package asyncgrpc

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventQueueSerializesClosures(t *testing.T) {
	var queue = NewEventQueue()
	var done = make(chan struct{})
	go func() {
		queue.Run()
		close(done)
	}()

	var executing, maxExecuting, count int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				queue.Push(func() {
					var n = atomic.AddInt32(&executing, 1)
					if n > atomic.LoadInt32(&maxExecuting) {
						atomic.StoreInt32(&maxExecuting, n)
					}
					atomic.AddInt32(&count, 1)
					atomic.AddInt32(&executing, -1)
				})
			}
		}()
	}
	wg.Wait()
	queue.Close()
	<-done

	require.Equal(t, int32(800), atomic.LoadInt32(&count))
	require.Equal(t, int32(1), atomic.LoadInt32(&maxExecuting))
}

func TestEventQueuePreservesFIFOOrder(t *testing.T) {
	var queue = NewEventQueue()

	var order []int
	for i := 0; i < 100; i++ {
		var i = i
		queue.Push(func() { order = append(order, i) })
	}
	queue.Close()
	queue.Run() // Drains in place.

	require.Len(t, order, 100)
	for i, got := range order {
		require.Equal(t, i, got)
	}
}

func TestEventQueueDropsClosuresAfterClose(t *testing.T) {
	var queue = NewEventQueue()
	queue.Close()

	var ran bool
	queue.Push(func() { ran = true })
	queue.Run()
	require.False(t, ran)
}

func TestCompletionQueueShutdownDrains(t *testing.T) {
	var cq = NewCompletionQueue()
	cq.Push(&Event{Kind: ReadEvent, Ok: true})
	cq.Shutdown()

	var event, ok = cq.Next()
	require.True(t, ok)
	require.Equal(t, ReadEvent, event.Kind)

	_, ok = cq.Next()
	require.False(t, ok)
}
