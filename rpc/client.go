package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/spooky-finn/marketbus/registry"
)

// Client calls the MarketBus service over an established connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func method(name string) string {
	return fmt.Sprintf("/%s/%s", ServiceName, name)
}

func (c *Client) StartConnector(ctx context.Context, req map[string]interface{}) (registry.Handle, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return 0, err
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method("StartConnector"), in, out); err != nil {
		return 0, err
	}
	return registry.Handle(out.GetFields()["handle"].GetNumberValue()), nil
}

func (c *Client) StopConnector(ctx context.Context, handle registry.Handle) (bool, error) {
	in, err := structpb.NewStruct(map[string]interface{}{"handle": float64(handle)})
	if err != nil {
		return false, err
	}

	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, method("StopConnector"), in, out); err != nil {
		return false, err
	}
	return out.GetValue(), nil
}

func (c *Client) FetchSnapshot(ctx context.Context, req map[string]interface{}) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}

	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method("FetchSnapshot"), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

type EventStream struct {
	stream grpc.ClientStream
}

func (s *EventStream) Recv() (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := s.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Subscribe opens the event stream. An empty venue receives every venue. Cancel ctx to end it.
func (c *Client) Subscribe(ctx context.Context, venue string) (*EventStream, error) {
	stream, err := c.cc.NewStream(ctx, &serviceDesc.Streams[0], method("Subscribe"))
	if err != nil {
		return nil, err
	}

	in, err := structpb.NewStruct(map[string]interface{}{"venue": venue})
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}
