package application

import (
	"fmt"

	"github.com/raffle-network/raffled/internal/core/domain"
)

var (
	// ErrRoundClosed is returned to entrants while a draw is in progress.
	ErrRoundClosed = fmt.Errorf("round is closed, draw in progress")
	// ErrNoOutstandingDraw is returned when a randomness delivery arrives
	// without a draw in progress, duplicate deliveries included.
	ErrNoOutstandingDraw = fmt.Errorf("no outstanding randomness request")
	// ErrNoWinnerYet is returned before the first round has been finalized.
	ErrNoWinnerYet = fmt.Errorf("no winner picked yet")
)

type InsufficientPaymentError struct {
	Amount      uint64
	TicketPrice uint64
}

func (e InsufficientPaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: got %d, ticket price is %d", e.Amount, e.TicketPrice)
}

// UpkeepNotNeededError carries a snapshot of the conditions the readiness
// predicate evaluated, so the trigger service can tell why the draw refused
// to start.
type UpkeepNotNeededError struct {
	Balance     uint64
	NumEntrants int
	Stage       domain.RoundStage
}

func (e UpkeepNotNeededError) Error() string {
	return fmt.Sprintf(
		"upkeep not needed: balance %d, entrants %d, stage %s",
		e.Balance, e.NumEntrants, e.Stage,
	)
}

type RequestMismatchError struct {
	Got  string
	Want string
}

func (e RequestMismatchError) Error() string {
	return fmt.Sprintf("randomness request id mismatch: got %s, want %s", e.Got, e.Want)
}

// PayoutFailedError signals a failed prize transfer. By the time it occurs the
// round state has already advanced to the next round; the funds stay on the
// pool account with no recorded claim.
type PayoutFailedError struct {
	Winner string
	Amount uint64
	Err    error
}

func (e PayoutFailedError) Error() string {
	return fmt.Sprintf("failed to pay %d to winner %s: %v", e.Amount, e.Winner, e.Err)
}

func (e PayoutFailedError) Unwrap() error {
	return e.Err
}
