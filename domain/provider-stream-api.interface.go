package domain

import "context"

// ProviderSyncAPI fetches one order book snapshot over REST.
type ProviderSyncAPI interface {
	FetchSnapshot(ctx context.Context, instrument string, depth int) (*OrderBookSnapshot, error)
}

// ProviderTickAPI fetches one quote over REST, for venues without a book endpoint.
type ProviderTickAPI interface {
	FetchTick(ctx context.Context, instrument string) (*Tick, error)
}

// StreamSession holds the per-connection parse state of a streaming venue.
type StreamSession interface {
	// Handshake returns the messages to send right after the connection opens.
	Handshake() []interface{}
	// Parse turns one wire message into zero or more events. Errors wrap ErrParse.
	Parse(msg []byte) ([]Event, error)
}

type ProviderStreamAPI interface {
	Exchange() Exchange
	Endpoint() string
	NewSession(instruments []string, depth int) StreamSession
}
