package inmemoryledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/raffle-network/raffled/internal/core/ports"
)

// service is an in-memory ledger. Transfers are atomic under the lock: either
// both balances move or neither does. Addresses on the blocklist refuse
// incoming transfers, which is how payout failure is exercised without a real
// settlement layer behind.
type service struct {
	lock      sync.Mutex
	balances  map[string]uint64
	blocklist map[string]struct{}
}

func NewLedgerService() ports.LedgerService {
	return &service{
		balances:  make(map[string]uint64),
		blocklist: make(map[string]struct{}),
	}
}

func (s *service) Credit(ctx context.Context, account string, amount uint64) error {
	if len(account) <= 0 {
		return fmt.Errorf("missing account")
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.balances[account] += amount
	return nil
}

func (s *service) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if len(from) <= 0 || len(to) <= 0 {
		return fmt.Errorf("missing account")
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.blocklist[to]; ok {
		return fmt.Errorf("account %s refuses incoming transfers", to)
	}
	if s.balances[from] < amount {
		return fmt.Errorf(
			"insufficient balance on %s: have %d, need %d", from, s.balances[from], amount,
		)
	}

	s.balances[from] -= amount
	s.balances[to] += amount
	return nil
}

func (s *service) Balance(ctx context.Context, account string) (uint64, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.balances[account], nil
}

func (s *service) Close() {}

// Block makes an address refuse incoming transfers.
func (s *service) Block(account string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.blocklist[account] = struct{}{}
}
