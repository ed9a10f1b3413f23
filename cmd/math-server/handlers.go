package main

import (
	"github.com/gogo/protobuf/proto"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/estuary/asyncgrpc"
	"github.com/estuary/asyncgrpc/mathpb"
)

// mathContext is the execution context shared by the Math handlers.
type mathContext struct {
	additionalIncrement int32
}

type getSquareHandler struct {
	asyncgrpc.HandlerBase
}

func (h *getSquareHandler) OnRequest(request proto.Message) {
	var input = request.(*mathpb.GetSquareRequest).Input
	if input < 0 {
		h.Finish(status.New(codes.Internal, "internal error"))
		return
	}
	h.Send(&mathpb.GetSquareResponse{Output: input * input})
}

type getSumHandler struct {
	asyncgrpc.HandlerBase
	sum int32
}

func (h *getSumHandler) OnRequest(request proto.Message) {
	h.Context().With(func(value interface{}) {
		h.sum += value.(*mathContext).additionalIncrement
	})
	h.sum += request.(*mathpb.GetSumRequest).Input
}

func (h *getSumHandler) OnReadsDone() {
	h.Send(&mathpb.GetSumResponse{Output: h.sum})
}

type getSequenceHandler struct {
	asyncgrpc.HandlerBase
}

func (h *getSequenceHandler) OnRequest(request proto.Message) {
	for i := int32(0); i < request.(*mathpb.GetSequenceRequest).Input; i++ {
		h.Send(&mathpb.GetSequenceResponse{Output: i})
	}
	h.Finish(status.New(codes.OK, ""))
}

type getRunningSumHandler struct {
	asyncgrpc.HandlerBase
	sum int32
}

func (h *getRunningSumHandler) OnRequest(request proto.Message) {
	h.sum += request.(*mathpb.GetSumRequest).Input

	// Respond twice to demonstrate bidirectional streaming.
	h.Send(&mathpb.GetSumResponse{Output: h.sum})
	h.Send(&mathpb.GetSumResponse{Output: h.sum})
}

func (h *getRunningSumHandler) OnReadsDone() {
	h.Finish(status.New(codes.OK, ""))
}

func registerMathService(builder *asyncgrpc.Builder) {
	builder.MustRegister(mathpb.GetSquareMethod().WithHandler(func() asyncgrpc.Handler {
		return new(getSquareHandler)
	}))
	builder.MustRegister(mathpb.GetSumMethod().WithHandler(func() asyncgrpc.Handler {
		return new(getSumHandler)
	}))
	builder.MustRegister(mathpb.GetSequenceMethod().WithHandler(func() asyncgrpc.Handler {
		return new(getSequenceHandler)
	}))
	builder.MustRegister(mathpb.GetRunningSumMethod().WithHandler(func() asyncgrpc.Handler {
		return new(getRunningSumHandler)
	}))
}
