package asyncgrpc

import (
	"fmt"
	"strings"

	"github.com/gogo/protobuf/proto"
)

// StreamType is the shape of an RPC method.
type StreamType int32

const (
	Unary StreamType = iota
	ClientStream
	ServerStream
	BidiStream
)

func (t StreamType) String() string {
	switch t {
	case Unary:
		return "unary"
	case ClientStream:
		return "client-stream"
	case ServerStream:
		return "server-stream"
	case BidiStream:
		return "bidi-stream"
	default:
		return fmt.Sprintf("StreamType(%d)", int32(t))
	}
}

// clientStreaming tells whether the client may send more than one message.
func (t StreamType) clientStreaming() bool {
	return t == ClientStream || t == BidiStream
}

// serverStreaming tells whether the server may send more than one message.
func (t StreamType) serverStreaming() bool {
	return t == ServerStream || t == BidiStream
}

// Method describes one RPC service method: its fully qualified name
// ("/package.Service/Method"), stream type, request and response message
// prototypes, and the factory producing a fresh Handler for each RPC.
// A Method is immutable after registration with a server Builder.
//
// NewRequest and NewResponse stand in for descriptor metadata: the
// framework treats payloads as opaque proto messages and uses the
// factories to materialize typed buffers at the transport boundary.
type Method struct {
	FullName    string
	Type        StreamType
	NewRequest  func() proto.Message
	NewResponse func() proto.Message
	NewHandler  func() Handler
}

// WithHandler returns a copy of the Method bound to a handler factory.
func (m Method) WithHandler(newHandler func() Handler) Method {
	m.NewHandler = newHandler
	return m
}

// ServiceName returns the fully qualified service name of the method.
func (m Method) ServiceName() string {
	var service, _, err = ParseMethodFullName(m.FullName)
	if err != nil {
		return ""
	}
	return service
}

// ShortName returns the bare method name, without the service prefix.
func (m Method) ShortName() string {
	var _, name, err = ParseMethodFullName(m.FullName)
	if err != nil {
		return m.FullName
	}
	return name
}

func (m Method) validate() error {
	if _, _, err := ParseMethodFullName(m.FullName); err != nil {
		return err
	} else if m.NewRequest == nil || m.NewResponse == nil {
		return fmt.Errorf("method %s: missing request or response prototype", m.FullName)
	}
	return nil
}

// ParseMethodFullName splits a fully qualified method name of the form
// "/package.Service/Method" into its service and method components.
func ParseMethodFullName(fullName string) (service string, method string, err error) {
	if !strings.HasPrefix(fullName, "/") {
		return "", "", fmt.Errorf("method name %q: expected leading '/'", fullName)
	}
	var parts = strings.Split(fullName[1:], "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("method name %q: expected '/service/method'", fullName)
	}
	return parts[0], parts[1], nil
}
