package application

import "github.com/raffle-network/raffled/internal/core/ports"

type ServiceInfo struct {
	TicketPrice     uint64
	DrawInterval    int64
	DrawTimeout     int64
	Stage           string
	CurrentRoundId  string
	NumEntrants     int
	PoolBalance     uint64
	WindowStart     int64
	LastWinner      string
	Randomness      ports.RandomWordsRequest
}
