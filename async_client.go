package asyncgrpc

import (
	"context"
	"io"

	"github.com/gogo/protobuf/proto"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AsyncCallback receives the result of an asynchronous call. For unary
// methods it is invoked exactly once with the response (or nil on
// error). For server-streaming methods it is invoked once per streamed
// response, and finally once with a nil response and the terminal
// status to signal end-of-stream.
type AsyncCallback func(st *status.Status, response proto.Message)

// AsyncClient mirrors the server's event-driven state machine on the
// calling side. It is driven by the process-wide completion queue pool;
// the callback runs on a pool driver goroutine. Unary and
// server-streaming methods are supported.
type AsyncClient struct {
	conn     *grpc.ClientConn
	method   Method
	callback AsyncCallback
	cq       *ClientCompletionQueue

	ctx    context.Context
	cancel context.CancelFunc

	stream       grpc.ClientStream
	response     proto.Message
	finalStatus  *status.Status
	callbackDone bool
}

// NewAsyncClient builds an asynchronous client for one call of the
// given unary or server-streaming method.
func NewAsyncClient(conn *grpc.ClientConn, method Method, callback AsyncCallback) *AsyncClient {
	switch method.Type {
	case Unary, ServerStream:
		// Pass.
	default:
		panic("async client supports unary and server-streaming methods only")
	}
	var ctx, cancel = context.WithCancel(context.Background())
	return &AsyncClient{
		conn:     conn,
		method:   method,
		callback: callback,
		cq:       GetCompletionQueue(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// WriteAsync starts the call with the given request and returns
// immediately. Results are delivered through the callback.
func (c *AsyncClient) WriteAsync(request proto.Message) {
	switch c.method.Type {
	case Unary:
		go func() {
			var response = c.method.NewResponse()
			var err = c.conn.Invoke(c.ctx, c.method.FullName, request, response,
				grpc.ForceCodec(protoCodec{}))
			c.response = response
			c.finalStatus = status.Convert(err)
			c.cq.Push(ClientEvent{Kind: ClientFinishEvent, Client: c, Ok: err == nil})
		}()

	case ServerStream:
		go func() {
			var desc = &grpc.StreamDesc{
				StreamName:    c.method.ShortName(),
				ServerStreams: true,
			}
			var stream, err = c.conn.NewStream(c.ctx, desc, c.method.FullName,
				grpc.ForceCodec(protoCodec{}))
			if err == nil {
				err = stream.SendMsg(request)
			}
			if err == nil {
				err = stream.CloseSend()
			}
			c.stream = stream
			c.cq.Push(ClientEvent{Kind: ClientWriteEvent, Client: c, Ok: err == nil})
		}()
	}
}

// HandleEvent dispatches one completion event. It runs on a pool
// driver goroutine.
func (c *AsyncClient) HandleEvent(event ClientEvent) {
	switch event.Kind {
	case ClientWriteEvent:
		c.handleWriteEvent(event)
	case ClientReadEvent:
		c.handleReadEvent(event)
	case ClientFinishEvent:
		c.handleFinishEvent(event)
	default:
		log.WithField("kind", event.Kind).Error("unhandled client event kind")
	}
}

func (c *AsyncClient) handleWriteEvent(event ClientEvent) {
	if !event.Ok {
		c.finalStatus = status.New(codes.Internal, "write failed")
		c.cq.Push(ClientEvent{Kind: ClientFinishEvent, Client: c, Ok: false})
		return
	}
	c.armRead()
}

func (c *AsyncClient) handleReadEvent(event ClientEvent) {
	if event.Ok {
		if c.callback != nil {
			c.callback(status.New(codes.OK, ""), c.response)
		}
		c.armRead()
		return
	}
	c.cq.Push(ClientEvent{
		Kind:   ClientFinishEvent,
		Client: c,
		Ok:     c.finalStatus.Code() == codes.OK,
	})
}

func (c *AsyncClient) handleFinishEvent(event ClientEvent) {
	c.cancel()
	if c.callbackDone || c.callback == nil {
		return
	}
	c.callbackDone = true

	var st = c.finalStatus
	if st == nil {
		st = status.New(codes.Internal, "finish failed")
	}
	if event.Ok && c.method.Type == Unary {
		c.callback(st, c.response)
	} else {
		c.callback(st, nil)
	}
}

// armRead launches the read of the next streamed response.
func (c *AsyncClient) armRead() {
	go func() {
		var response = c.method.NewResponse()
		var err = c.stream.RecvMsg(response)
		c.response = response
		if err == io.EOF {
			c.finalStatus = status.New(codes.OK, "")
		} else {
			c.finalStatus = status.Convert(err)
		}
		c.cq.Push(ClientEvent{Kind: ClientReadEvent, Client: c, Ok: err == nil})
	}()
}
