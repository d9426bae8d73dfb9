package domain

import "time"

// ConnectorParams are passed opaquely from configuration to a venue connector.
type ConnectorParams struct {
	Instruments []string
	// PollInterval selects the polling variant when non-zero.
	PollInterval time.Duration
	Depth        int
	// Endpoint overrides the configured venue base URL.
	Endpoint string
	// Restart re-runs the connector with backoff after its connection ends.
	Restart bool
}

func (p ConnectorParams) SnapshotDepth() int {
	if p.Depth <= 0 {
		return DefaultDepth
	}
	return p.Depth
}
