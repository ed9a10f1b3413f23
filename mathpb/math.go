// Package mathpb holds the message and method definitions of the
// example Math service used by the framework's tests and demo server.
// The messages are hand-written proto-compatible types: the framework
// treats payloads as opaque proto messages, and these round-trip
// through proto reflection via their field tags, which keeps the
// example free of a protoc toolchain dependency.
package mathpb

import (
	"github.com/gogo/protobuf/proto"

	"github.com/estuary/asyncgrpc"
)

type GetSquareRequest struct {
	Input int32 `protobuf:"varint,1,opt,name=input,proto3" json:"input,omitempty"`
}

func (m *GetSquareRequest) Reset()         { *m = GetSquareRequest{} }
func (m *GetSquareRequest) String() string { return proto.CompactTextString(m) }
func (*GetSquareRequest) ProtoMessage()    {}

type GetSquareResponse struct {
	Output int32 `protobuf:"varint,1,opt,name=output,proto3" json:"output,omitempty"`
}

func (m *GetSquareResponse) Reset()         { *m = GetSquareResponse{} }
func (m *GetSquareResponse) String() string { return proto.CompactTextString(m) }
func (*GetSquareResponse) ProtoMessage()    {}

type GetSumRequest struct {
	Input int32 `protobuf:"varint,1,opt,name=input,proto3" json:"input,omitempty"`
}

func (m *GetSumRequest) Reset()         { *m = GetSumRequest{} }
func (m *GetSumRequest) String() string { return proto.CompactTextString(m) }
func (*GetSumRequest) ProtoMessage()    {}

type GetSumResponse struct {
	Output int32 `protobuf:"varint,1,opt,name=output,proto3" json:"output,omitempty"`
}

func (m *GetSumResponse) Reset()         { *m = GetSumResponse{} }
func (m *GetSumResponse) String() string { return proto.CompactTextString(m) }
func (*GetSumResponse) ProtoMessage()    {}

type GetSequenceRequest struct {
	Input int32 `protobuf:"varint,1,opt,name=input,proto3" json:"input,omitempty"`
}

func (m *GetSequenceRequest) Reset()         { *m = GetSequenceRequest{} }
func (m *GetSequenceRequest) String() string { return proto.CompactTextString(m) }
func (*GetSequenceRequest) ProtoMessage()    {}

type GetSequenceResponse struct {
	Output int32 `protobuf:"varint,1,opt,name=output,proto3" json:"output,omitempty"`
}

func (m *GetSequenceResponse) Reset()         { *m = GetSequenceResponse{} }
func (m *GetSequenceResponse) String() string { return proto.CompactTextString(m) }
func (*GetSequenceResponse) ProtoMessage()    {}

type GetEchoRequest struct {
	Input int32 `protobuf:"varint,1,opt,name=input,proto3" json:"input,omitempty"`
}

func (m *GetEchoRequest) Reset()         { *m = GetEchoRequest{} }
func (m *GetEchoRequest) String() string { return proto.CompactTextString(m) }
func (*GetEchoRequest) ProtoMessage()    {}

type GetEchoResponse struct {
	Output int32 `protobuf:"varint,1,opt,name=output,proto3" json:"output,omitempty"`
}

func (m *GetEchoResponse) Reset()         { *m = GetEchoResponse{} }
func (m *GetEchoResponse) String() string { return proto.CompactTextString(m) }
func (*GetEchoResponse) ProtoMessage()    {}

// GetSquareMethod is the unary squaring method.
func GetSquareMethod() asyncgrpc.Method {
	return asyncgrpc.Method{
		FullName:    "/asyncgrpc.math.Math/GetSquare",
		Type:        asyncgrpc.Unary,
		NewRequest:  func() proto.Message { return new(GetSquareRequest) },
		NewResponse: func() proto.Message { return new(GetSquareResponse) },
	}
}

// GetSumMethod is the client-streaming summation method.
func GetSumMethod() asyncgrpc.Method {
	return asyncgrpc.Method{
		FullName:    "/asyncgrpc.math.Math/GetSum",
		Type:        asyncgrpc.ClientStream,
		NewRequest:  func() proto.Message { return new(GetSumRequest) },
		NewResponse: func() proto.Message { return new(GetSumResponse) },
	}
}

// GetSequenceMethod is the server-streaming counting method.
func GetSequenceMethod() asyncgrpc.Method {
	return asyncgrpc.Method{
		FullName:    "/asyncgrpc.math.Math/GetSequence",
		Type:        asyncgrpc.ServerStream,
		NewRequest:  func() proto.Message { return new(GetSequenceRequest) },
		NewResponse: func() proto.Message { return new(GetSequenceResponse) },
	}
}

// GetRunningSumMethod is the bidirectional running-sum method.
func GetRunningSumMethod() asyncgrpc.Method {
	return asyncgrpc.Method{
		FullName:    "/asyncgrpc.math.Math/GetRunningSum",
		Type:        asyncgrpc.BidiStream,
		NewRequest:  func() proto.Message { return new(GetSumRequest) },
		NewResponse: func() proto.Message { return new(GetSumResponse) },
	}
}

// GetEchoMethod is the unary echo method, used to demonstrate late
// writes from foreign goroutines.
func GetEchoMethod() asyncgrpc.Method {
	return asyncgrpc.Method{
		FullName:    "/asyncgrpc.math.Math/GetEcho",
		Type:        asyncgrpc.Unary,
		NewRequest:  func() proto.Message { return new(GetEchoRequest) },
		NewResponse: func() proto.Message { return new(GetEchoResponse) },
	}
}
