package asyncgrpc_test

import (
	"testing"
	"time"

	"github.com/gogo/protobuf/proto"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/estuary/asyncgrpc"
	"github.com/estuary/asyncgrpc/mathpb"
)

const asyncTimeout = 10 * time.Second

func TestAsyncUnaryClient(t *testing.T) {
	var _, conn, _ = newMathServer(t)

	type result struct {
		st       *status.Status
		response proto.Message
	}
	var results = make(chan result, 1)

	var client = asyncgrpc.NewAsyncClient(conn, mathpb.GetSquareMethod(),
		func(st *status.Status, response proto.Message) {
			results <- result{st, response}
		})
	client.WriteAsync(&mathpb.GetSquareRequest{Input: 11})

	select {
	case r := <-results:
		require.Equal(t, codes.OK, r.st.Code())
		require.Equal(t, int32(121), r.response.(*mathpb.GetSquareResponse).Output)
	case <-time.After(asyncTimeout):
		t.Fatal("timed out waiting for async callback")
	}
}

func TestAsyncUnaryClientError(t *testing.T) {
	var _, conn, _ = newMathServer(t)

	type result struct {
		st       *status.Status
		response proto.Message
	}
	var results = make(chan result, 1)

	var client = asyncgrpc.NewAsyncClient(conn, mathpb.GetSquareMethod(),
		func(st *status.Status, response proto.Message) {
			results <- result{st, response}
		})
	client.WriteAsync(&mathpb.GetSquareRequest{Input: -11})

	select {
	case r := <-results:
		require.Equal(t, codes.Internal, r.st.Code())
		require.Nil(t, r.response)
	case <-time.After(asyncTimeout):
		t.Fatal("timed out waiting for async callback")
	}
}

func TestAsyncServerStreamingClient(t *testing.T) {
	var _, conn, _ = newMathServer(t)

	var responses = make(chan int32, 16)
	var finished = make(chan *status.Status, 1)

	var client = asyncgrpc.NewAsyncClient(conn, mathpb.GetSequenceMethod(),
		func(st *status.Status, response proto.Message) {
			if response != nil {
				responses <- response.(*mathpb.GetSequenceResponse).Output
			} else {
				finished <- st
			}
		})
	client.WriteAsync(&mathpb.GetSequenceRequest{Input: 10})

	var outputs []int32
	var deadline = time.After(asyncTimeout)
	for {
		select {
		case output := <-responses:
			outputs = append(outputs, output)
		case st := <-finished:
			// Callbacks are serialized, so every streamed response is
			// already buffered; drain before asserting.
			for {
				select {
				case output := <-responses:
					outputs = append(outputs, output)
					continue
				default:
				}
				break
			}
			require.Equal(t, codes.OK, st.Code())
			require.Equal(t,
				[]int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, outputs)
			return
		case <-deadline:
			t.Fatal("timed out waiting for async stream")
		}
	}
}
