package rpc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/spooky-finn/marketbus/domain"
	"github.com/spooky-finn/marketbus/registry"
)

func (s *server) StartConnector(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()

	venue, err := s.venue(fields)
	if err != nil {
		return nil, err
	}

	instruments := make([]string, 0)
	for _, v := range fields["instruments"].GetListValue().GetValues() {
		if instrument := v.GetStringValue(); instrument != "" {
			instruments = append(instruments, instrument)
		}
	}
	if market := fields["market"].GetStringValue(); market != "" {
		instrument, err := s.marketInstrument(venue, market)
		if err != nil {
			return nil, err
		}
		instruments = append(instruments, instrument)
	}
	if len(instruments) == 0 {
		return nil, status.Error(codes.InvalidArgument, "no instruments given")
	}

	params := domain.ConnectorParams{
		Instruments:  instruments,
		PollInterval: time.Duration(fields["poll_interval_ms"].GetNumberValue()) * time.Millisecond,
		Depth:        int(fields["depth"].GetNumberValue()),
		Endpoint:     fields["endpoint"].GetStringValue(),
		Restart:      fields["restart"].GetBoolValue(),
	}

	handle, err := s.engine.StartConnector(venue, params)
	if err != nil {
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"handle": float64(handle),
	})
}

func (s *server) StopConnector(ctx context.Context, in *structpb.Struct) (*wrapperspb.BoolValue, error) {
	handle := in.GetFields()["handle"].GetNumberValue()
	if handle <= 0 {
		return nil, status.Error(codes.InvalidArgument, "handle is required")
	}
	return wrapperspb.Bool(s.engine.StopConnector(registry.Handle(handle))), nil
}

func (s *server) FetchSnapshot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	fields := in.GetFields()

	venue, err := s.venue(fields)
	if err != nil {
		return nil, err
	}

	instrument := fields["instrument"].GetStringValue()
	if market := fields["market"].GetStringValue(); instrument == "" && market != "" {
		if instrument, err = s.marketInstrument(venue, market); err != nil {
			return nil, err
		}
	}
	if instrument == "" {
		return nil, status.Error(codes.InvalidArgument, "instrument is required")
	}

	snapshot, err := s.engine.FetchSnapshotDepth(ctx, venue, instrument, int(fields["depth"].GetNumberValue()))
	if err != nil {
		return nil, toStatus(err)
	}
	return eventStruct(*snapshot)
}

// Subscribe streams bus events until the client goes away. A venue field filters by venue.
// A {kind: lag, skipped: n} message precedes the first event after a loss.
func (s *server) Subscribe(in *structpb.Struct, stream grpc.ServerStream) error {
	var filter domain.Exchange
	if venue := in.GetFields()["venue"].GetStringValue(); venue != "" {
		exchange, err := domain.ParseExchange(venue)
		if err != nil {
			return toStatus(err)
		}
		filter = exchange
	}

	sub := s.engine.Channel(s.streamBuffer)
	defer sub.Unsubscribe()

	s.logger.Info("stream subscriber attached", zap.String("subscription", sub.Topic), zap.String("venue", filter.String()))

	var reported uint64
	for {
		select {
		case <-stream.Context().Done():
			return nil
		case ev, ok := <-sub.Stream:
			if !ok {
				return status.Error(codes.Unavailable, "bus closed")
			}

			if sub.Lagged != nil {
				if lagged := sub.Lagged(); lagged > reported {
					if err := stream.SendMsg(lagStruct(lagged - reported)); err != nil {
						return err
					}
					reported = lagged
				}
			}
			if filter != "" && ev.Venue() != filter {
				continue
			}

			msg, err := eventStruct(ev)
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

func (s *server) venue(fields map[string]*structpb.Value) (string, error) {
	venue := strings.ToLower(strings.TrimSpace(fields["venue"].GetStringValue()))
	if !s.validationService.IsSupportedVenue(venue) {
		return "", toStatus(fmt.Errorf("%w: %q", domain.ErrUnknownVenue, venue))
	}
	return venue, nil
}

// marketInstrument renders a "base_quote" market in the venue's notation.
func (s *server) marketInstrument(venue string, market string) (string, error) {
	symbol, err := domain.NewMarketSymbolFromString(market)
	if err != nil {
		return "", status.Errorf(codes.InvalidArgument, "invalid market %s, expected base_quote", market)
	}

	instrument, err := s.engine.Notation(venue, symbol)
	if err != nil {
		return "", toStatus(err)
	}
	return instrument, nil
}

func levelsList(levels []domain.PriceLevel) []interface{} {
	out := make([]interface{}, 0, len(levels))
	for _, l := range levels {
		out = append(out, []interface{}{l.Price, l.Quantity})
	}
	return out
}

// lagStruct tells a stream client how many events it lost since the previous notice.
func lagStruct(skipped uint64) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"kind":    structpb.NewStringValue("lag"),
		"skipped": structpb.NewNumberValue(float64(skipped)),
	}}
}

func eventStruct(ev domain.Event) (*structpb.Struct, error) {
	fields := map[string]interface{}{
		"kind":      domain.Kind(ev),
		"exchange":  ev.Venue().String(),
		"pair":      ev.Instrument(),
		"timestamp": float64(ev.Time()),
	}

	switch e := ev.(type) {
	case domain.Tick:
		fields["bid"] = e.Bid
		fields["ask"] = e.Ask
	case domain.OrderBookSnapshot:
		fields["bids"] = levelsList(e.Bids)
		fields["asks"] = levelsList(e.Asks)
	}
	return structpb.NewStruct(fields)
}
