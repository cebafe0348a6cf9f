package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raffle-network/raffled/internal/core/domain"
	"github.com/raffle-network/raffled/internal/core/ports"
	log "github.com/sirupsen/logrus"
)

// PoolAccount is the ledger account holding the prize pool between payouts.
const PoolAccount = "prize-pool"

type Service interface {
	Start() error
	Stop()

	Enter(ctx context.Context, address string, amount uint64) (*domain.Round, error)
	CheckUpkeep(ctx context.Context) (bool, []byte, error)
	PerformUpkeep(ctx context.Context) (string, error)
	ReopenDraw(ctx context.Context) error

	GetInfo(ctx context.Context) (*ServiceInfo, error)
	GetCurrentRound(ctx context.Context) (*domain.Round, error)
	GetRoundById(ctx context.Context, id string) (*domain.Round, error)
	GetLastWinner(ctx context.Context) (string, error)
	GetEntrant(ctx context.Context, index int) (*domain.Entrant, error)
	GetEventsChannel(ctx context.Context) <-chan domain.RoundEvent
}

type service struct {
	ticketPrice  uint64
	drawInterval int64 // seconds
	pollInterval int64 // seconds, 0 disables the in-process trigger
	drawTimeout  int64 // seconds, 0 disables the watchdog
	rngParams    ports.RandomWordsRequest

	rng         ports.RandomnessSource
	ledger      ports.LedgerService
	repoManager ports.RepoManager
	scheduler   ports.SchedulerService

	// Every state-mutating operation runs to completion under this lock.
	// Entrants, the trigger and the randomness delivery all funnel through
	// it, so each call observes the previous one fully applied.
	lock         sync.Mutex
	currentRound *domain.Round
	lastWinner   string

	eventsCh chan domain.RoundEvent
	stopCh   chan struct{}

	now func() time.Time
}

func NewService(
	ticketPrice uint64,
	drawInterval, pollInterval, drawTimeout int64,
	rngParams ports.RandomWordsRequest,
	rng ports.RandomnessSource,
	ledger ports.LedgerService,
	repoManager ports.RepoManager,
	scheduler ports.SchedulerService,
) (Service, error) {
	if ticketPrice <= 0 {
		return nil, fmt.Errorf("ticket price must be positive")
	}
	if drawInterval <= 0 {
		return nil, fmt.Errorf("draw interval must be positive")
	}

	svc := &service{
		ticketPrice:  ticketPrice,
		drawInterval: drawInterval,
		pollInterval: pollInterval,
		drawTimeout:  drawTimeout,
		rngParams:    rngParams,
		rng:          rng,
		ledger:       ledger,
		repoManager:  repoManager,
		scheduler:    scheduler,
		eventsCh:     make(chan domain.RoundEvent),
		stopCh:       make(chan struct{}),
		now:          time.Now,
	}

	repoManager.RegisterEventsHandler(func(round *domain.Round) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("recovered from panic in round projection: %v", r)
			}
		}()

		if err := repoManager.Rounds().AddOrUpdateRound(
			context.Background(), *round,
		); err != nil {
			log.WithError(err).Warn("failed to update round projection")
		}
	})

	if lastRound, _ := repoManager.Rounds().GetLastFinalizedRound(
		context.Background(),
	); lastRound != nil {
		svc.lastWinner = lastRound.Winner
	}

	go svc.listenToRandomnessDeliveries()

	return svc, nil
}

func (s *service) Start() error {
	s.lock.Lock()
	if s.currentRound == nil {
		if err := s.openRound(context.Background()); err != nil {
			s.lock.Unlock()
			return err
		}
	}
	s.lock.Unlock()

	if s.pollInterval > 0 {
		if err := s.scheduler.ScheduleTaskRepeating(
			s.pollInterval, s.pollUpkeep,
		); err != nil {
			return err
		}
	}
	s.scheduler.Start()

	log.Debug("started app service")
	return nil
}

func (s *service) Stop() {
	close(s.stopCh)
	s.scheduler.Stop()
	s.rng.Close()
	s.ledger.Close()
	s.repoManager.Close()
	log.Debug("stopped app service")
}

func (s *service) Enter(
	ctx context.Context, address string, amount uint64,
) (*domain.Round, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	round := s.currentRound
	if round.Stage.Code == domain.DrawingStage {
		return nil, ErrRoundClosed
	}
	if len(address) <= 0 {
		return nil, fmt.Errorf("missing entrant address")
	}
	if amount < s.ticketPrice {
		return nil, InsufficientPaymentError{Amount: amount, TicketPrice: s.ticketPrice}
	}

	// Every aggregate guard has been checked above, so once the payment is
	// credited to the pool the registration below cannot fail and leave a
	// credited but unregistered entry behind.
	if err := s.ledger.Credit(ctx, PoolAccount, amount); err != nil {
		return nil, fmt.Errorf("failed to collect entry payment: %w", err)
	}

	changes, err := round.RegisterEntrant(address, amount, s.now().Unix())
	if err != nil {
		return nil, err
	}
	s.saveEvents(ctx, round.Id, changes)

	log.WithField("address", address).Debugf(
		"accepted entrant %d for round %s", len(round.Entrants), round.Id,
	)
	registered := *round
	return &registered, nil
}

func (s *service) CheckUpkeep(ctx context.Context) (bool, []byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.checkUpkeep(ctx)
}

func (s *service) PerformUpkeep(ctx context.Context) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	// Readiness is re-evaluated here, under the same lock that applies the
	// transition. A stale check from an earlier poll can never trigger a
	// draw that is no longer due.
	upkeepNeeded, _, err := s.checkUpkeep(ctx)
	if err != nil {
		return "", err
	}
	round := s.currentRound
	if !upkeepNeeded {
		balance, _ := s.ledger.Balance(ctx, PoolAccount)
		return "", UpkeepNotNeededError{
			Balance:     balance,
			NumEntrants: len(round.Entrants),
			Stage:       round.Stage.Code,
		}
	}

	requestId, err := s.rng.RequestRandomWords(ctx, s.rngParams)
	if err != nil {
		return "", fmt.Errorf("failed to request random words: %w", err)
	}

	changes, err := round.StartDraw(requestId, s.now().Unix())
	if err != nil {
		return "", err
	}
	s.saveEvents(ctx, round.Id, changes)

	if s.drawTimeout > 0 {
		s.scheduleDrawWatchdog(round.Id)
	}

	log.Debugf("started draw for round %s, request %s", round.Id, requestId)
	return requestId, nil
}

// ReopenDraw is the administrative recovery for a randomness source that
// never responds: it fails the stuck round and opens a fresh one, carrying
// the registered entrants over so the held balance keeps matching the sum of
// the accepted entries.
func (s *service) ReopenDraw(ctx context.Context) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	round := s.currentRound
	if round.Stage.Code != domain.DrawingStage {
		return ErrNoOutstandingDraw
	}
	if s.drawTimeout <= 0 {
		return fmt.Errorf("draw timeout is disabled")
	}
	if elapsed := s.now().Unix() - round.DrawTimestamp; elapsed < s.drawTimeout {
		return fmt.Errorf(
			"draw not timed out yet: %d of %d seconds elapsed", elapsed, s.drawTimeout,
		)
	}

	changes := round.Fail(fmt.Errorf("randomness delivery timed out"))
	s.saveEvents(ctx, round.Id, changes)

	if err := s.openRound(ctx); err != nil {
		return err
	}
	next := s.currentRound
	for _, entrant := range round.Entrants {
		carried, err := next.RegisterEntrant(
			entrant.Address, entrant.Amount, entrant.Timestamp,
		)
		if err != nil {
			return err
		}
		s.saveEvents(ctx, next.Id, carried)
	}

	log.Warnf(
		"reopened round after stuck draw: %s -> %s, %d entrants carried over",
		round.Id, next.Id, len(next.Entrants),
	)
	return nil
}

func (s *service) GetInfo(ctx context.Context) (*ServiceInfo, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	round := s.currentRound
	balance, err := s.ledger.Balance(ctx, PoolAccount)
	if err != nil {
		return nil, err
	}

	return &ServiceInfo{
		TicketPrice:    s.ticketPrice,
		DrawInterval:   s.drawInterval,
		DrawTimeout:    s.drawTimeout,
		Stage:          round.Stage.Code.String(),
		CurrentRoundId: round.Id,
		NumEntrants:    len(round.Entrants),
		PoolBalance:    balance,
		WindowStart:    round.StartingTimestamp,
		LastWinner:     s.lastWinner,
		Randomness:     s.rngParams,
	}, nil
}

func (s *service) GetCurrentRound(ctx context.Context) (*domain.Round, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	round := *s.currentRound
	return &round, nil
}

func (s *service) GetRoundById(ctx context.Context, id string) (*domain.Round, error) {
	return s.repoManager.Rounds().GetRoundWithId(ctx, id)
}

func (s *service) GetLastWinner(ctx context.Context) (string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if len(s.lastWinner) <= 0 {
		return "", ErrNoWinnerYet
	}
	return s.lastWinner, nil
}

func (s *service) GetEntrant(ctx context.Context, index int) (*domain.Entrant, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	entrants := s.currentRound.Entrants
	if index < 0 || index >= len(entrants) {
		return nil, fmt.Errorf("entrant index %d out of range [0, %d)", index, len(entrants))
	}
	entrant := entrants[index]
	return &entrant, nil
}

func (s *service) GetEventsChannel(ctx context.Context) <-chan domain.RoundEvent {
	return s.eventsCh
}

// checkUpkeep evaluates the draw-readiness predicate. It never mutates state;
// callers must hold the lock.
func (s *service) checkUpkeep(ctx context.Context) (bool, []byte, error) {
	round := s.currentRound

	balance, err := s.ledger.Balance(ctx, PoolAccount)
	if err != nil {
		return false, nil, fmt.Errorf("failed to read pool balance: %w", err)
	}

	intervalElapsed := s.now().Unix()-round.StartingTimestamp >= s.drawInterval
	isOpen := round.Stage.Code == domain.OpenStage
	hasEntrants := len(round.Entrants) > 0
	hasBalance := balance > 0

	upkeepNeeded := intervalElapsed && isOpen && hasEntrants && hasBalance
	// The payload is reserved for forwarding data from the check to the
	// perform step; nothing uses it yet.
	return upkeepNeeded, []byte{}, nil
}

func (s *service) listenToRandomnessDeliveries() {
	for {
		select {
		case <-s.stopCh:
			return
		case delivery, ok := <-s.rng.Deliveries():
			if !ok {
				return
			}
			if err := s.handleRandomnessDelivery(
				context.Background(), delivery,
			); err != nil {
				log.WithError(err).Warnf(
					"dropped randomness delivery for request %s", delivery.RequestId,
				)
			}
		}
	}
}

func (s *service) handleRandomnessDelivery(
	ctx context.Context, delivery ports.RandomWordsDelivery,
) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	round := s.currentRound
	if round.Stage.Code != domain.DrawingStage {
		return ErrNoOutstandingDraw
	}
	if delivery.RequestId != round.RequestId {
		return RequestMismatchError{Got: delivery.RequestId, Want: round.RequestId}
	}
	if len(delivery.RandomWords) <= 0 {
		return fmt.Errorf("empty random words in delivery for request %s", delivery.RequestId)
	}

	payout, err := s.ledger.Balance(ctx, PoolAccount)
	if err != nil {
		return fmt.Errorf("failed to read pool balance: %w", err)
	}

	changes, err := round.EndDraw(delivery.RequestId, delivery.RandomWords[0], payout)
	if err != nil {
		return err
	}
	winner := round.Winner
	s.lastWinner = winner
	s.saveEvents(ctx, round.Id, changes)

	log.Debugf("picked winner %s for round %s", winner, round.Id)

	// The next round opens before the payout is attempted. A reentrant call
	// arriving during the transfer finds the coordinator already reset, so
	// it cannot touch the finalized round.
	if err := s.openRound(ctx); err != nil {
		return err
	}

	if err := s.ledger.Transfer(ctx, PoolAccount, winner, payout); err != nil {
		// The round has already advanced; the pool keeps the funds with no
		// recorded claim. Surfaced loudly, not rolled back.
		failure := round.Fail(fmt.Errorf("payout failed: %v", err))
		s.saveEvents(ctx, round.Id, failure)
		return PayoutFailedError{Winner: winner, Amount: payout, Err: err}
	}

	log.Debugf("paid %d to winner %s", payout, winner)
	return nil
}

// openRound creates the next round and snapshots the accepting-window start.
// Callers must hold the lock.
func (s *service) openRound(ctx context.Context) error {
	round := domain.NewRound(s.ticketPrice)
	changes, err := round.StartAcceptance(s.now().Unix())
	if err != nil {
		return err
	}
	s.currentRound = round
	s.saveEvents(ctx, round.Id, changes)

	log.Debugf("opened round %s", round.Id)
	return nil
}

func (s *service) pollUpkeep() {
	ctx := context.Background()

	upkeepNeeded, _, err := s.CheckUpkeep(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to check upkeep")
		return
	}
	if !upkeepNeeded {
		return
	}

	requestId, err := s.PerformUpkeep(ctx)
	if err != nil {
		// Lost the race with another trigger between check and perform.
		if _, ok := err.(UpkeepNotNeededError); ok {
			return
		}
		log.WithError(err).Warn("failed to perform upkeep")
		return
	}
	log.Infof("draw triggered, randomness request %s", requestId)
}

func (s *service) scheduleDrawWatchdog(roundId string) {
	at := s.now().Unix() + s.drawTimeout
	if err := s.scheduler.ScheduleTaskOnce(at, func() {
		s.lock.Lock()
		stuck := s.currentRound.Id == roundId &&
			s.currentRound.Stage.Code == domain.DrawingStage
		s.lock.Unlock()
		if !stuck {
			return
		}
		if err := s.ReopenDraw(context.Background()); err != nil {
			log.WithError(err).Warn("failed to reopen stuck draw")
		}
	}); err != nil {
		log.WithError(err).Warn("failed to schedule draw watchdog")
	}
}

func (s *service) saveEvents(
	ctx context.Context, id string, events []domain.RoundEvent,
) {
	if len(events) <= 0 {
		return
	}
	if _, err := s.repoManager.Events().Save(ctx, id, events...); err != nil {
		log.WithError(err).Warn("failed to store round events")
	}
	go s.propagateEvents(events)
}

func (s *service) propagateEvents(events []domain.RoundEvent) {
	for _, event := range events {
		select {
		case <-s.stopCh:
			return
		case s.eventsCh <- event:
		}
	}
}
