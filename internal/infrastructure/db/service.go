package db

import (
	"fmt"

	"github.com/raffle-network/raffled/internal/core/domain"
	"github.com/raffle-network/raffled/internal/core/ports"
	badgerdb "github.com/raffle-network/raffled/internal/infrastructure/db/badger"
)

var (
	eventStoreTypes = map[string]func(...interface{}) (domain.RoundEventRepository, error){
		"badger": badgerdb.NewRoundEventRepository,
	}
	roundStoreTypes = map[string]func(...interface{}) (domain.RoundRepository, error){
		"badger": badgerdb.NewRoundRepository,
	}
)

type ServiceConfig struct {
	EventStoreType string
	DataStoreType  string

	EventStoreConfig []interface{}
	DataStoreConfig  []interface{}
}

type service struct {
	eventStore domain.RoundEventRepository
	roundStore domain.RoundRepository
}

func NewService(config ServiceConfig) (ports.RepoManager, error) {
	eventStoreFactory, ok := eventStoreTypes[config.EventStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid event store type: %s", config.EventStoreType)
	}

	eventStore, err := eventStoreFactory(config.EventStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create event store: %w", err)
	}

	roundStoreFactory, ok := roundStoreTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	roundStore, err := roundStoreFactory(config.DataStoreConfig...)
	if err != nil {
		return nil, fmt.Errorf("failed to create round store: %w", err)
	}

	return &service{
		eventStore: eventStore,
		roundStore: roundStore,
	}, nil
}

func (s *service) Events() domain.RoundEventRepository {
	return s.eventStore
}

func (s *service) Rounds() domain.RoundRepository {
	return s.roundStore
}

func (s *service) RegisterEventsHandler(handler func(round *domain.Round)) {
	s.eventStore.RegisterEventsHandler(handler)
}

func (s *service) Close() {
	s.eventStore.Close()
	s.roundStore.Close()
}
