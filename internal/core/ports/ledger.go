package ports

import "context"

// LedgerService holds account balances beneath the coordinator. Transfer is
// atomic: it either moves the full amount or fails leaving both balances
// untouched.
type LedgerService interface {
	Credit(ctx context.Context, account string, amount uint64) error
	Transfer(ctx context.Context, from, to string, amount uint64) error
	Balance(ctx context.Context, account string) (uint64, error)
	Close()
}
