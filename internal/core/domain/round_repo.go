package domain

import "context"

type RoundEventRepository interface {
	Save(ctx context.Context, id string, events ...RoundEvent) (*Round, error)
	Load(ctx context.Context, id string) (*Round, error)
	RegisterEventsHandler(func(*Round))
	Close()
}

type RoundRepository interface {
	AddOrUpdateRound(ctx context.Context, round Round) error
	GetRoundWithId(ctx context.Context, id string) (*Round, error)
	GetCurrentRound(ctx context.Context) (*Round, error)
	GetLastFinalizedRound(ctx context.Context) (*Round, error)
	GetRoundsIds(ctx context.Context, startedAfter int64, startedBefore int64) ([]string, error)
	Close()
}
