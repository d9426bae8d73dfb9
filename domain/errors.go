package domain

import "errors"

var (
	// ErrNetwork covers refused connections, timeouts, TLS failures and non-2xx responses.
	ErrNetwork = errors.New("network error")
	// ErrParse marks a payload that does not match the venue schema. The message is dropped.
	ErrParse = errors.New("parse error")
	// ErrChannelClosed is terminal for the connector that observes it.
	ErrChannelClosed = errors.New("channel closed")

	ErrUnknownVenue  = errors.New("unknown venue")
	ErrUnknownHandle = errors.New("unknown handle")
	ErrUnsupported   = errors.New("operation not supported by venue")
	// ErrInvalidParams is a caller mistake in connector or snapshot parameters.
	ErrInvalidParams = errors.New("invalid parameters")
)
