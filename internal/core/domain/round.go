package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	UndefinedStage RoundStage = iota
	OpenStage
	DrawingStage
)

type RoundStage int

func (s RoundStage) String() string {
	switch s {
	case OpenStage:
		return "OPEN_STAGE"
	case DrawingStage:
		return "DRAWING_STAGE"
	default:
		return "UNDEFINED_STAGE"
	}
}

type Stage struct {
	Code   RoundStage
	Ended  bool
	Failed bool
}

// Entrant is a single accepted entry. The same address may appear multiple
// times, once per payment; the slice order is the index space used to pick
// the winner.
type Entrant struct {
	Address   string
	Amount    uint64
	Timestamp int64
}

// Round is the aggregate governing one accepting window of the lottery.
// It is rebuilt from its events; a payout ends the round and the coordinator
// opens a fresh one.
type Round struct {
	Id                string
	TicketPrice       uint64
	StartingTimestamp int64
	EndingTimestamp   int64
	Stage             Stage
	Entrants          []Entrant
	RequestId         string
	DrawTimestamp     int64
	RandomWord        uint64
	Winner            string
	Payout            uint64
	Version           uint
	changes           []RoundEvent
}

func NewRound(ticketPrice uint64) *Round {
	return &Round{
		Id:          uuid.New().String(),
		TicketPrice: ticketPrice,
		Entrants:    make([]Entrant, 0),
		changes:     make([]RoundEvent, 0),
	}
}

func NewRoundFromEvents(events []RoundEvent) *Round {
	r := &Round{}

	for _, event := range events {
		r.On(event, true)
	}

	r.changes = append([]RoundEvent{}, events...)

	return r
}

func (r *Round) Events() []RoundEvent {
	return r.changes
}

func (r *Round) On(event RoundEvent, replayed bool) {
	switch e := event.(type) {
	case RoundStarted:
		r.Stage.Code = OpenStage
		r.Id = e.Id
		r.TicketPrice = e.TicketPrice
		r.StartingTimestamp = e.Timestamp
	case EntrantRegistered:
		r.Entrants = append(r.Entrants, e.Entrant)
	case DrawStarted:
		r.Stage.Code = DrawingStage
		r.RequestId = e.RequestId
		r.DrawTimestamp = e.Timestamp
	case RoundFinalized:
		r.Stage.Ended = true
		r.RandomWord = e.RandomWord
		r.Winner = e.Winner
		r.Payout = e.Payout
		r.EndingTimestamp = e.Timestamp
	case RoundFailed:
		r.Stage.Failed = true
		r.EndingTimestamp = e.Timestamp
	}

	if replayed {
		r.Version++
	}
}

func (r *Round) StartAcceptance(timestamp int64) ([]RoundEvent, error) {
	empty := Stage{}
	if r.Stage != empty {
		return nil, fmt.Errorf("not in a valid stage to start accepting entrants")
	}
	if timestamp <= 0 {
		timestamp = time.Now().Unix()
	}

	event := RoundStarted{
		Id:          r.Id,
		TicketPrice: r.TicketPrice,
		Timestamp:   timestamp,
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) RegisterEntrant(address string, amount uint64, timestamp int64) ([]RoundEvent, error) {
	if r.Stage.Code != OpenStage || r.IsFailed() {
		return nil, fmt.Errorf("not in a valid stage to register entrants")
	}
	if len(address) <= 0 {
		return nil, fmt.Errorf("missing entrant address")
	}
	if amount < r.TicketPrice {
		return nil, fmt.Errorf("entry amount %d below ticket price %d", amount, r.TicketPrice)
	}

	event := EntrantRegistered{
		Id: r.Id,
		Entrant: Entrant{
			Address:   address,
			Amount:    amount,
			Timestamp: timestamp,
		},
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) StartDraw(requestId string, timestamp int64) ([]RoundEvent, error) {
	if len(requestId) <= 0 {
		return nil, fmt.Errorf("missing randomness request id")
	}
	if r.Stage.Code != OpenStage || r.IsFailed() {
		return nil, fmt.Errorf("not in a valid stage to start the draw")
	}
	if len(r.Entrants) <= 0 {
		return nil, fmt.Errorf("no entrants registered")
	}
	if timestamp <= 0 {
		timestamp = time.Now().Unix()
	}

	event := DrawStarted{
		Id:        r.Id,
		RequestId: requestId,
		Timestamp: timestamp,
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) EndDraw(requestId string, randomWord uint64, payout uint64) ([]RoundEvent, error) {
	if r.Stage.Code != DrawingStage || r.IsFailed() {
		return nil, fmt.Errorf("not in a valid stage to end the draw")
	}
	if r.Stage.Ended {
		return nil, fmt.Errorf("round already finalized")
	}
	if requestId != r.RequestId {
		return nil, fmt.Errorf("randomness request id mismatch: got %s, want %s", requestId, r.RequestId)
	}

	// Modulo over the entrant count is the selection rule. The bias for
	// entrant counts close to the randomness modulus is an accepted
	// approximation, not something to compensate for here.
	winner := r.Entrants[randomWord%uint64(len(r.Entrants))].Address

	event := RoundFinalized{
		Id:         r.Id,
		RequestId:  requestId,
		RandomWord: randomWord,
		Winner:     winner,
		Payout:     payout,
		Timestamp:  time.Now().Unix(),
	}
	r.raise(event)

	return []RoundEvent{event}, nil
}

func (r *Round) Fail(err error) []RoundEvent {
	if r.Stage.Failed {
		return nil
	}
	event := RoundFailed{
		Id:        r.Id,
		Err:       err.Error(),
		Timestamp: time.Now().Unix(),
	}
	r.raise(event)

	return []RoundEvent{event}
}

func (r *Round) IsStarted() bool {
	empty := Stage{}
	return !r.IsFailed() && !r.IsEnded() && r.Stage != empty
}

func (r *Round) IsEnded() bool {
	return !r.IsFailed() && r.Stage.Ended
}

func (r *Round) IsFailed() bool {
	return r.Stage.Failed
}

// TotalPoolAmount is the sum of the accepted entry amounts. It must match the
// balance held on the pool account at all times between payouts.
func (r *Round) TotalPoolAmount() uint64 {
	tot := uint64(0)
	for _, entrant := range r.Entrants {
		tot += entrant.Amount
	}
	return tot
}

func (r *Round) raise(event RoundEvent) {
	if r.changes == nil {
		r.changes = make([]RoundEvent, 0)
	}
	r.changes = append(r.changes, event)
	r.On(event, false)
}
