package asyncgrpc

import (
	"context"
	"io"
	"time"

	"github.com/gogo/protobuf/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/estuary/asyncgrpc/auth"
)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryStrategy retries the blocking unary call per the strategy,
// replacing the call context between attempts. Retry is only legal for
// unary methods: streaming retries would require replaying writes.
func WithRetryStrategy(strategy RetryStrategy) ClientOption {
	return func(c *Client) { c.retry = strategy }
}

// WithTimeout attaches a deadline to the call context. On retry the
// deadline is renewed with the fresh context.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.timeout = timeout }
}

// WithCredentials applies a credentials provider to the call context
// immediately before each call.
func WithCredentials(creds auth.CredentialsProvider) ClientOption {
	return func(c *Client) { c.creds = creds }
}

// Client issues one blocking RPC of any stream type. A Client serves a
// single call: it is not thread-safe and not reusable across calls.
type Client struct {
	conn    *grpc.ClientConn
	method  Method
	retry   RetryStrategy
	timeout time.Duration
	creds   auth.CredentialsProvider

	stream        grpc.ClientStream
	streamCancel  context.CancelFunc
	streamRecvErr error
	response      proto.Message
}

// NewClient builds a Client for one call of the given method.
func NewClient(conn *grpc.ClientConn, method Method, options ...ClientOption) *Client {
	var c = &Client{
		conn:     conn,
		method:   method,
		response: method.NewResponse(),
	}
	for _, option := range options {
		option(c)
	}
	if c.retry != nil && method.Type != Unary {
		panic("retry is only supported for unary methods")
	}
	return c
}

// Write issues the unary call (retrying per the client's strategy), or
// sends one streaming request message.
func (c *Client) Write(request proto.Message) error {
	switch c.method.Type {
	case Unary:
		var last *status.Status
		RetryWithStrategy(c.retry, func() *status.Status {
			last = c.invoke(request)
			return last
		}, c.reset)
		return last.Err()

	case ClientStream, BidiStream:
		if err := c.ensureStream(); err != nil {
			return err
		}
		return c.stream.SendMsg(request)

	case ServerStream:
		if err := c.ensureStream(); err != nil {
			return err
		}
		if err := c.stream.SendMsg(request); err != nil {
			return err
		}
		return c.stream.CloseSend()

	default:
		panic("unknown stream type")
	}
}

// StreamRead reads the next streamed response. It returns false at
// end-of-stream or on error; StreamFinish reports which.
func (c *Client) StreamRead(response proto.Message) bool {
	switch c.method.Type {
	case ServerStream, BidiStream:
		// Pass.
	default:
		panic("StreamRead is for server or bidirectional streaming RPCs only")
	}
	if err := c.ensureStream(); err != nil {
		c.streamRecvErr = err
		return false
	}
	if err := c.stream.RecvMsg(response); err != nil {
		c.streamRecvErr = err
		return false
	}
	return true
}

// StreamWritesDone half-closes the sending side of the stream.
func (c *Client) StreamWritesDone() error {
	switch c.method.Type {
	case ClientStream, BidiStream:
		// Pass.
	default:
		panic("StreamWritesDone is for client or bidirectional streaming RPCs only")
	}
	if err := c.ensureStream(); err != nil {
		return err
	}
	return c.stream.CloseSend()
}

// StreamFinish blocks for the call's terminal status. For
// client-streaming methods it first reads the single response, which
// Response then exposes.
func (c *Client) StreamFinish() error {
	if c.method.Type == Unary {
		panic("StreamFinish is for streaming RPCs only")
	}
	if err := c.ensureStream(); err != nil {
		return err
	}
	defer c.cancelStream()

	if c.method.Type == ClientStream {
		if err := c.stream.RecvMsg(c.response); err != nil {
			return statusFromStreamError(err)
		}
	}
	// Drain to the terminal status.
	var err = c.streamRecvErr
	for err == nil {
		err = c.stream.RecvMsg(c.method.NewResponse())
	}
	return statusFromStreamError(err)
}

// Response returns the final response of a unary or client-streaming
// call, valid once the call has succeeded.
func (c *Client) Response() proto.Message {
	switch c.method.Type {
	case Unary, ClientStream:
		return c.response
	default:
		panic("Response is for unary and client-streaming RPCs only")
	}
}

func (c *Client) invoke(request proto.Message) *status.Status {
	var ctx, cancel, err = c.callContext()
	if err != nil {
		return status.Convert(err)
	}
	defer cancel()

	c.response = c.method.NewResponse()
	err = c.conn.Invoke(ctx, c.method.FullName, request, c.response,
		grpc.ForceCodec(protoCodec{}))
	return status.Convert(err)
}

func (c *Client) ensureStream() error {
	if c.stream != nil {
		return nil
	}
	var ctx, cancel, err = c.callContext()
	if err != nil {
		return err
	}
	var desc = &grpc.StreamDesc{
		StreamName:    c.method.ShortName(),
		ClientStreams: c.method.Type.clientStreaming(),
		ServerStreams: c.method.Type.serverStreaming(),
	}
	stream, err := c.conn.NewStream(ctx, desc, c.method.FullName,
		grpc.ForceCodec(protoCodec{}))
	if err != nil {
		cancel()
		return err
	}
	c.stream = stream
	c.streamCancel = cancel
	return nil
}

// reset discards per-call state between retry attempts; the next
// attempt builds a fresh call context.
func (c *Client) reset() {
	c.cancelStream()
	c.stream = nil
	c.streamRecvErr = nil
}

func (c *Client) cancelStream() {
	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
	}
}

func (c *Client) callContext() (context.Context, context.CancelFunc, error) {
	var ctx = context.Background()
	var err error
	if c.creds != nil {
		if ctx, err = c.creds.SetCredentials(ctx); err != nil {
			return nil, nil, err
		}
	}
	if c.timeout != 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		return ctx, cancel, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	return ctx, cancel, nil
}

// statusFromStreamError maps a terminal RecvMsg error to the call
// status: io.EOF is a clean end-of-stream.
func statusFromStreamError(err error) error {
	if err == io.EOF {
		return nil
	}
	return status.Convert(err).Err()
}
