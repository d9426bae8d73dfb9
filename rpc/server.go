package rpc

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/spooky-finn/marketbus/domain"
	"github.com/spooky-finn/marketbus/registry"
)

const ServiceName = "marketbus.MarketBus"

// Engine is what the gRPC surface drives. *engine.Engine implements it.
type Engine interface {
	StartConnector(venue string, params domain.ConnectorParams) (registry.Handle, error)
	StopConnector(handle registry.Handle) bool
	FetchSnapshotDepth(ctx context.Context, venue string, instrument string, depth int) (*domain.OrderBookSnapshot, error)
	Channel(buffer int) *domain.Subscription[domain.Event]
	Notation(venue string, symbol *domain.MarketSymbol) (string, error)
}

// MarketBusServer uses protobuf well-known types as messages, so no generated code is involved.
// proto/marketbus.proto lists the keys each message carries.
type MarketBusServer interface {
	StartConnector(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	StopConnector(ctx context.Context, in *structpb.Struct) (*wrapperspb.BoolValue, error)
	FetchSnapshot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	Subscribe(in *structpb.Struct, stream grpc.ServerStream) error
}

type server struct {
	engine            Engine
	validationService *ValidationService
	streamBuffer      int
	logger            *zap.Logger
}

func NewServer(engine Engine, conf *ValidationServiceConfig, logger *zap.Logger) *server {
	return &server{
		engine:            engine,
		validationService: NewValidationService(conf),
		streamBuffer:      256,
		logger:            logger,
	}
}

func Register(s grpc.ServiceRegistrar, srv MarketBusServer) {
	s.RegisterService(&serviceDesc, srv)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MarketBusServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StartConnector",
			Handler: unaryHandler("StartConnector", func(s MarketBusServer, ctx context.Context, in *structpb.Struct) (interface{}, error) {
				return s.StartConnector(ctx, in)
			}),
		},
		{
			MethodName: "StopConnector",
			Handler: unaryHandler("StopConnector", func(s MarketBusServer, ctx context.Context, in *structpb.Struct) (interface{}, error) {
				return s.StopConnector(ctx, in)
			}),
		},
		{
			MethodName: "FetchSnapshot",
			Handler: unaryHandler("FetchSnapshot", func(s MarketBusServer, ctx context.Context, in *structpb.Struct) (interface{}, error) {
				return s.FetchSnapshot(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       subscribeHandler,
			ServerStreams: true,
		},
	},
}

type unaryCall func(s MarketBusServer, ctx context.Context, in *structpb.Struct) (interface{}, error)

func unaryHandler(method string, call unaryCall) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	fullMethod := fmt.Sprintf("/%s/%s", ServiceName, method)

	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(MarketBusServer), ctx, in)
		}

		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(MarketBusServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func subscribeHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MarketBusServer).Subscribe(in, stream)
}

// toStatus maps engine errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrUnknownVenue), errors.Is(err, domain.ErrUnsupported), errors.Is(err, domain.ErrInvalidParams):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrUnknownHandle):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrNetwork):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, domain.ErrParse):
		return status.Error(codes.DataLoss, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}
