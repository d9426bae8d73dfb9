package domain

// Subscription is a pull-style view of a stream. Unsubscribe closes Stream.
type Subscription[T any] struct {
	Stream      <-chan T
	Unsubscribe func()
	Topic       string
	// Lagged returns how many items the subscriber has lost to overflow so far. May be nil.
	Lagged func() uint64
}
