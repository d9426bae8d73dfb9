package domain

type ConnManager interface {
	// SnapshotAPI returns the REST order book client for exchange.
	SnapshotAPI(exchange Exchange) (ProviderSyncAPI, error)
}
