package domain

import (
	"errors"
	"sync"
)

var ErrOrderBookNotFound = errors.New("order book not found")
var ErrProviderNotFound = errors.New("provider not found")

// OrderBookStorage keeps the most recent snapshot per exchange and pair.
type OrderBookStorage struct {
	mu      sync.RWMutex
	storage map[Exchange]map[string]OrderBookSnapshot
}

func NewOrderBookStorage() *OrderBookStorage {
	return &OrderBookStorage{
		storage: make(map[Exchange]map[string]OrderBookSnapshot),
	}
}

func (o *OrderBookStorage) Add(snapshot OrderBookSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.storage[snapshot.Exchange]; !ok {
		o.storage[snapshot.Exchange] = make(map[string]OrderBookSnapshot)
	}

	// out-of-order writes from a restarted connector must not roll the book back
	if current, ok := o.storage[snapshot.Exchange][snapshot.Pair]; ok && current.Timestamp > snapshot.Timestamp {
		return
	}
	o.storage[snapshot.Exchange][snapshot.Pair] = snapshot
}

func (o *OrderBookStorage) Get(exchange Exchange, pair string) (OrderBookSnapshot, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	books, ok := o.storage[exchange]
	if !ok {
		return OrderBookSnapshot{}, ErrProviderNotFound
	}

	snapshot, ok := books[pair]
	if !ok {
		return OrderBookSnapshot{}, ErrOrderBookNotFound
	}

	return snapshot, nil
}

func (o *OrderBookStorage) OrderBookCount(exchange Exchange) int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	books, ok := o.storage[exchange]
	if !ok {
		return -1
	}

	return len(books)
}
