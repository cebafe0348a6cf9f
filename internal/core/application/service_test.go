package application

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raffle-network/raffled/internal/core/domain"
	"github.com/raffle-network/raffled/internal/core/ports"
	"github.com/raffle-network/raffled/internal/infrastructure/db"
	inmemoryledger "github.com/raffle-network/raffled/internal/infrastructure/ledger/inmemory"
	"github.com/stretchr/testify/require"
)

var testRngParams = ports.RandomWordsRequest{
	KeyHash:              "0xabc",
	SubscriptionId:       7,
	RequestConfirmations: 3,
	CallbackGasLimit:     500000,
	NumWords:             1,
}

type stubRng struct {
	ch          chan ports.RandomWordsDelivery
	numRequests int
	lastRequest ports.RandomWordsRequest
}

func newStubRng() *stubRng {
	return &stubRng{ch: make(chan ports.RandomWordsDelivery)}
}

func (r *stubRng) RequestRandomWords(
	_ context.Context, req ports.RandomWordsRequest,
) (string, error) {
	r.numRequests++
	r.lastRequest = req
	return fmt.Sprintf("request-%d", r.numRequests), nil
}

func (r *stubRng) Deliveries() <-chan ports.RandomWordsDelivery {
	return r.ch
}

func (r *stubRng) Close() {}

type stubScheduler struct {
	onceTasks []func()
}

func (s *stubScheduler) Start() {}
func (s *stubScheduler) Stop()  {}

func (s *stubScheduler) ScheduleTaskOnce(at int64, task func()) error {
	s.onceTasks = append(s.onceTasks, task)
	return nil
}

func (s *stubScheduler) ScheduleTaskRepeating(intervalSeconds int64, task func()) error {
	return nil
}

type testEnv struct {
	svc       *service
	rng       *stubRng
	ledger    ports.LedgerService
	scheduler *stubScheduler
	repo      ports.RepoManager
	nowUnix   int64
}

func (e *testEnv) advance(seconds int64) {
	atomic.AddInt64(&e.nowUnix, seconds)
}

func newTestEnv(
	t *testing.T, ticketPrice uint64, drawInterval, drawTimeout int64,
) *testEnv {
	repoManager, err := db.NewService(db.ServiceConfig{
		EventStoreType:   "badger",
		DataStoreType:    "badger",
		EventStoreConfig: []interface{}{"", nil},
		DataStoreConfig:  []interface{}{"", nil},
	})
	require.NoError(t, err)

	rng := newStubRng()
	ledger := inmemoryledger.NewLedgerService()
	scheduler := &stubScheduler{}

	svcIface, err := NewService(
		ticketPrice, drawInterval, 0, drawTimeout, testRngParams,
		rng, ledger, repoManager, scheduler,
	)
	require.NoError(t, err)

	env := &testEnv{
		svc:       svcIface.(*service),
		rng:       rng,
		ledger:    ledger,
		scheduler: scheduler,
		repo:      repoManager,
		nowUnix:   1000000,
	}
	env.svc.now = func() time.Time {
		return time.Unix(atomic.LoadInt64(&env.nowUnix), 0)
	}

	require.NoError(t, env.svc.Start())
	t.Cleanup(env.svc.Stop)

	return env
}

func TestEnter(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1000, 3600, 0)

	// entrants are appended one per accepted payment, in call order
	for i, address := range []string{"addr-a", "addr-b", "addr-a"} {
		round, err := env.svc.Enter(ctx, address, 1000)
		require.NoError(t, err)
		require.Len(t, round.Entrants, i+1)
		require.Equal(t, address, round.Entrants[i].Address)
	}

	balance, err := env.ledger.Balance(ctx, PoolAccount)
	require.NoError(t, err)
	require.Equal(t, uint64(3000), balance)

	// overpayment is accepted and held in full
	round, err := env.svc.Enter(ctx, "addr-c", 1500)
	require.NoError(t, err)
	require.Len(t, round.Entrants, 4)

	balance, err = env.ledger.Balance(ctx, PoolAccount)
	require.NoError(t, err)
	require.Equal(t, uint64(4500), balance)
}

func TestEnterReturnsSnapshot(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1000, 3600, 0)

	first, err := env.svc.Enter(ctx, "addr-a", 1000)
	require.NoError(t, err)

	second, err := env.svc.Enter(ctx, "addr-b", 1000)
	require.NoError(t, err)

	// the rounds handed out are detached from the live one
	require.Len(t, first.Entrants, 1)
	require.Len(t, second.Entrants, 2)
}

func TestEnterMissingAddress(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1000, 3600, 0)

	_, err := env.svc.Enter(ctx, "", 1000)
	require.Error(t, err)

	// no credit without a registered entrant
	balance, err := env.ledger.Balance(ctx, PoolAccount)
	require.NoError(t, err)
	require.Zero(t, balance)

	round, err := env.svc.GetCurrentRound(ctx)
	require.NoError(t, err)
	require.Empty(t, round.Entrants)
}

func TestEnterInsufficientPayment(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1000, 3600, 0)

	for _, amount := range []uint64{0, 1, 999} {
		_, err := env.svc.Enter(ctx, "addr-a", amount)
		require.Error(t, err)

		var insufficientPayment InsufficientPaymentError
		require.ErrorAs(t, err, &insufficientPayment)
		require.Equal(t, amount, insufficientPayment.Amount)
		require.Equal(t, uint64(1000), insufficientPayment.TicketPrice)
	}

	// nothing mutated
	round, err := env.svc.GetCurrentRound(ctx)
	require.NoError(t, err)
	require.Empty(t, round.Entrants)

	balance, err := env.ledger.Balance(ctx, PoolAccount)
	require.NoError(t, err)
	require.Zero(t, balance)
}

func TestEnterWhileDrawing(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1000, 3600, 0)

	_, err := env.svc.Enter(ctx, "addr-a", 1000)
	require.NoError(t, err)
	env.advance(3600)

	_, err = env.svc.PerformUpkeep(ctx)
	require.NoError(t, err)

	// any payment is refused while the draw is outstanding
	for _, amount := range []uint64{999, 1000, 1000000} {
		_, err := env.svc.Enter(ctx, "addr-b", amount)
		require.ErrorIs(t, err, ErrRoundClosed)
	}
}

func TestCheckUpkeep(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1000, 3600, 0)

	// no entrants, interval not elapsed
	upkeepNeeded, payload, err := env.svc.CheckUpkeep(ctx)
	require.NoError(t, err)
	require.False(t, upkeepNeeded)
	require.NotNil(t, payload)

	// entrants present but interval not elapsed
	_, err = env.svc.Enter(ctx, "addr-a", 1000)
	require.NoError(t, err)
	env.advance(3599)
	upkeepNeeded, _, err = env.svc.CheckUpkeep(ctx)
	require.NoError(t, err)
	require.False(t, upkeepNeeded)

	// all conditions met
	env.advance(1)
	upkeepNeeded, _, err = env.svc.CheckUpkeep(ctx)
	require.NoError(t, err)
	require.True(t, upkeepNeeded)

	// checking is free of side effects
	for i := 0; i < 3; i++ {
		again, _, err := env.svc.CheckUpkeep(ctx)
		require.NoError(t, err)
		require.True(t, again)
	}

	// drawing stage turns it off
	_, err = env.svc.PerformUpkeep(ctx)
	require.NoError(t, err)
	upkeepNeeded, _, err = env.svc.CheckUpkeep(ctx)
	require.NoError(t, err)
	require.False(t, upkeepNeeded)
}

func TestPerformUpkeep(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1000, 3600, 0)

	// refuses when the predicate is false, with a diagnostic snapshot
	_, err := env.svc.PerformUpkeep(ctx)
	require.Error(t, err)
	var upkeepNotNeeded UpkeepNotNeededError
	require.ErrorAs(t, err, &upkeepNotNeeded)
	require.Zero(t, upkeepNotNeeded.Balance)
	require.Zero(t, upkeepNotNeeded.NumEntrants)
	require.Equal(t, domain.OpenStage, upkeepNotNeeded.Stage)

	_, err = env.svc.Enter(ctx, "addr-a", 1000)
	require.NoError(t, err)
	env.advance(3600)

	requestId, err := env.svc.PerformUpkeep(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, requestId)
	require.Equal(t, testRngParams, env.rng.lastRequest)

	round, err := env.svc.GetCurrentRound(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.DrawingStage, round.Stage.Code)
	require.Equal(t, requestId, round.RequestId)

	// an immediate second trigger is refused, the draw is outstanding
	_, err = env.svc.PerformUpkeep(ctx)
	require.Error(t, err)
	require.ErrorAs(t, err, &upkeepNotNeeded)
	require.Equal(t, domain.DrawingStage, upkeepNotNeeded.Stage)
	require.Equal(t, 1, env.rng.numRequests)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1, 3600, 0)

	for _, address := range []string{"addr-a", "addr-b", "addr-c"} {
		_, err := env.svc.Enter(ctx, address, 1)
		require.NoError(t, err)
	}

	upkeepNeeded, _, err := env.svc.CheckUpkeep(ctx)
	require.NoError(t, err)
	require.False(t, upkeepNeeded)

	env.advance(3600)
	upkeepNeeded, _, err = env.svc.CheckUpkeep(ctx)
	require.NoError(t, err)
	require.True(t, upkeepNeeded)

	requestId, err := env.svc.PerformUpkeep(ctx)
	require.NoError(t, err)

	err = env.svc.handleRandomnessDelivery(ctx, ports.RandomWordsDelivery{
		RequestId:   requestId,
		RandomWords: []uint64{7},
	})
	require.NoError(t, err)

	// 3 entrants, random word 7: winner is entrants[7 % 3] = addr-b
	winner, err := env.svc.GetLastWinner(ctx)
	require.NoError(t, err)
	require.Equal(t, "addr-b", winner)

	winnerBalance, err := env.ledger.Balance(ctx, "addr-b")
	require.NoError(t, err)
	require.Equal(t, uint64(3), winnerBalance)

	poolBalance, err := env.ledger.Balance(ctx, PoolAccount)
	require.NoError(t, err)
	require.Zero(t, poolBalance)

	// state reset: fresh accepting round, window starting at delivery time
	round, err := env.svc.GetCurrentRound(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.OpenStage, round.Stage.Code)
	require.Empty(t, round.Entrants)
	require.Empty(t, round.RequestId)
	require.Equal(t, atomic.LoadInt64(&env.nowUnix), round.StartingTimestamp)
}

func TestDeliveryWithoutOutstandingDraw(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1000, 3600, 0)

	err := env.svc.handleRandomnessDelivery(ctx, ports.RandomWordsDelivery{
		RequestId:   "request-1",
		RandomWords: []uint64{7},
	})
	require.ErrorIs(t, err, ErrNoOutstandingDraw)
}

func TestMismatchedAndDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1000, 3600, 0)

	_, err := env.svc.Enter(ctx, "addr-a", 1000)
	require.NoError(t, err)
	env.advance(3600)

	requestId, err := env.svc.PerformUpkeep(ctx)
	require.NoError(t, err)

	// mismatched request id is rejected and changes nothing
	err = env.svc.handleRandomnessDelivery(ctx, ports.RandomWordsDelivery{
		RequestId:   "bogus",
		RandomWords: []uint64{7},
	})
	var mismatch RequestMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "bogus", mismatch.Got)
	require.Equal(t, requestId, mismatch.Want)

	round, err := env.svc.GetCurrentRound(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.DrawingStage, round.Stage.Code)

	// empty word list is rejected too
	err = env.svc.handleRandomnessDelivery(ctx, ports.RandomWordsDelivery{
		RequestId: requestId,
	})
	require.Error(t, err)

	// the matching delivery settles the round
	err = env.svc.handleRandomnessDelivery(ctx, ports.RandomWordsDelivery{
		RequestId:   requestId,
		RandomWords: []uint64{42},
	})
	require.NoError(t, err)

	// a duplicate of the consumed delivery bounces off the fresh round
	err = env.svc.handleRandomnessDelivery(ctx, ports.RandomWordsDelivery{
		RequestId:   requestId,
		RandomWords: []uint64{42},
	})
	require.ErrorIs(t, err, ErrNoOutstandingDraw)
}

func TestPayoutFailure(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1000, 3600, 0)

	_, err := env.svc.Enter(ctx, "addr-a", 1000)
	require.NoError(t, err)
	env.advance(3600)

	requestId, err := env.svc.PerformUpkeep(ctx)
	require.NoError(t, err)

	env.ledger.(interface{ Block(string) }).Block("addr-a")

	err = env.svc.handleRandomnessDelivery(ctx, ports.RandomWordsDelivery{
		RequestId:   requestId,
		RandomWords: []uint64{0},
	})
	require.Error(t, err)
	var payoutFailed PayoutFailedError
	require.ErrorAs(t, err, &payoutFailed)
	require.Equal(t, "addr-a", payoutFailed.Winner)
	require.Equal(t, uint64(1000), payoutFailed.Amount)

	// the round already advanced; the funds stay on the pool account
	round, err := env.svc.GetCurrentRound(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.OpenStage, round.Stage.Code)
	require.Empty(t, round.Entrants)

	poolBalance, err := env.ledger.Balance(ctx, PoolAccount)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), poolBalance)

	winner, err := env.svc.GetLastWinner(ctx)
	require.NoError(t, err)
	require.Equal(t, "addr-a", winner)
}

func TestReopenDraw(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1000, 3600, 60)

	// nothing to reopen while accepting
	err := env.svc.ReopenDraw(ctx)
	require.ErrorIs(t, err, ErrNoOutstandingDraw)

	for _, address := range []string{"addr-a", "addr-b"} {
		_, err := env.svc.Enter(ctx, address, 1000)
		require.NoError(t, err)
	}
	env.advance(3600)

	_, err = env.svc.PerformUpkeep(ctx)
	require.NoError(t, err)
	require.Len(t, env.scheduler.onceTasks, 1)

	// too early
	env.advance(59)
	err = env.svc.ReopenDraw(ctx)
	require.Error(t, err)

	env.advance(1)
	err = env.svc.ReopenDraw(ctx)
	require.NoError(t, err)

	// fresh accepting round, entrants carried over, pool untouched
	round, err := env.svc.GetCurrentRound(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.OpenStage, round.Stage.Code)
	require.Len(t, round.Entrants, 2)
	require.Equal(t, "addr-a", round.Entrants[0].Address)
	require.Equal(t, "addr-b", round.Entrants[1].Address)

	poolBalance, err := env.ledger.Balance(ctx, PoolAccount)
	require.NoError(t, err)
	require.Equal(t, uint64(2000), poolBalance)
}

func TestDeliveryListener(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1000, 3600, 0)

	_, err := env.svc.Enter(ctx, "addr-a", 1000)
	require.NoError(t, err)
	env.advance(3600)

	requestId, err := env.svc.PerformUpkeep(ctx)
	require.NoError(t, err)

	env.rng.ch <- ports.RandomWordsDelivery{
		RequestId:   requestId,
		RandomWords: []uint64{3},
	}

	require.Eventually(t, func() bool {
		winner, err := env.svc.GetLastWinner(ctx)
		return err == nil && winner == "addr-a"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRoundProjection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1000, 3600, 0)

	_, err := env.svc.Enter(ctx, "addr-a", 1000)
	require.NoError(t, err)
	env.advance(3600)

	before, err := env.svc.GetCurrentRound(ctx)
	require.NoError(t, err)

	requestId, err := env.svc.PerformUpkeep(ctx)
	require.NoError(t, err)
	err = env.svc.handleRandomnessDelivery(ctx, ports.RandomWordsDelivery{
		RequestId:   requestId,
		RandomWords: []uint64{1},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		round, err := env.repo.Rounds().GetRoundWithId(ctx, before.Id)
		return err == nil && round.IsEnded() && round.Winner == "addr-a"
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		round, err := env.repo.Rounds().GetLastFinalizedRound(ctx)
		return err == nil && round != nil && round.Id == before.Id
	}, 2*time.Second, 10*time.Millisecond)
}

func TestReadAccessors(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 1000, 3600, 0)

	_, err := env.svc.GetLastWinner(ctx)
	require.ErrorIs(t, err, ErrNoWinnerYet)

	_, err = env.svc.GetEntrant(ctx, 0)
	require.Error(t, err)

	_, err = env.svc.Enter(ctx, "addr-a", 1000)
	require.NoError(t, err)

	entrant, err := env.svc.GetEntrant(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "addr-a", entrant.Address)

	_, err = env.svc.GetEntrant(ctx, 1)
	require.Error(t, err)
	_, err = env.svc.GetEntrant(ctx, -1)
	require.Error(t, err)

	info, err := env.svc.GetInfo(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), info.TicketPrice)
	require.Equal(t, int64(3600), info.DrawInterval)
	require.Equal(t, domain.OpenStage.String(), info.Stage)
	require.Equal(t, 1, info.NumEntrants)
	require.Equal(t, uint64(1000), info.PoolBalance)
	require.Equal(t, testRngParams, info.Randomness)
}
