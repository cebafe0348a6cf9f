package ports

import "context"

// RandomWordsRequest carries the opaque parameters the randomness service
// expects. They are pass-through values fixed at configuration time.
type RandomWordsRequest struct {
	KeyHash              string
	SubscriptionId       uint64
	RequestConfirmations uint32
	CallbackGasLimit     uint32
	NumWords             uint32
}

type RandomWordsDelivery struct {
	RequestId   string
	RandomWords []uint64
}

// RandomnessSource is the oracle contract: one request returns a handle,
// the matching delivery arrives later on the Deliveries channel, exactly once
// per request and in no guaranteed order relative to other operations.
type RandomnessSource interface {
	RequestRandomWords(ctx context.Context, req RandomWordsRequest) (string, error)
	Deliveries() <-chan RandomWordsDelivery
	Close()
}
