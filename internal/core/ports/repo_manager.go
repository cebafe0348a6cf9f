package ports

import "github.com/raffle-network/raffled/internal/core/domain"

type RepoManager interface {
	Events() domain.RoundEventRepository
	Rounds() domain.RoundRepository
	RegisterEventsHandler(func(round *domain.Round))
	Close()
}
