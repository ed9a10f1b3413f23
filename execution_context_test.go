package asyncgrpc_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/estuary/asyncgrpc"
)

type counterContext struct {
	n int
}

func TestExecutionContextSynchronizedAccess(t *testing.T) {
	var execCtx = asyncgrpc.NewExecutionContext(new(counterContext))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				execCtx.With(func(value interface{}) {
					value.(*counterContext).n++
				})
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1000, execCtx.Value().(*counterContext).n)
}
