package appconfig

import (
	"fmt"
	"time"

	"github.com/raffle-network/raffled/internal/core/application"
	"github.com/raffle-network/raffled/internal/core/ports"
	"github.com/raffle-network/raffled/internal/infrastructure/db"
	inmemoryledger "github.com/raffle-network/raffled/internal/infrastructure/ledger/inmemory"
	pseudorng "github.com/raffle-network/raffled/internal/infrastructure/rng/pseudo"
	timescheduler "github.com/raffle-network/raffled/internal/infrastructure/scheduler/gocron"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	DbType        string
	EventDbType   string
	DbDir         string
	EventDbDir    string
	SchedulerType string
	RngType       string
	LedgerType    string

	TicketPrice  uint64
	DrawInterval int64
	PollInterval int64
	DrawTimeout  int64

	RngKeyHash          string
	RngSubscriptionId   uint64
	RngConfirmations    uint32
	RngCallbackGasLimit uint32
	RngNumWords         uint32
	RngBlockTime        int64

	repo      ports.RepoManager
	svc       application.Service
	rng       ports.RandomnessSource
	ledger    ports.LedgerService
	scheduler ports.SchedulerService
}

func (c *Config) Validate() error {
	if c.TicketPrice <= 0 {
		return fmt.Errorf("invalid ticket price, must be positive")
	}
	if c.DrawInterval < 2 {
		return fmt.Errorf("invalid draw interval, must be at least 2 seconds")
	}
	if c.RngNumWords <= 0 {
		return fmt.Errorf("invalid rng word count, must be positive")
	}

	if err := c.repoManager(); err != nil {
		return err
	}
	if err := c.rngService(); err != nil {
		return err
	}
	if err := c.ledgerService(); err != nil {
		return err
	}
	if err := c.schedulerService(); err != nil {
		return err
	}
	return nil
}

func (c *Config) AppService() (application.Service, error) {
	if c.svc == nil {
		if err := c.appService(); err != nil {
			return nil, err
		}
	}
	return c.svc, nil
}

func (c *Config) repoManager() error {
	var eventStoreConfig []interface{}
	var dataStoreConfig []interface{}
	logger := log.New()

	switch c.EventDbType {
	case "badger":
		eventStoreConfig = []interface{}{c.EventDbDir, logger}
	default:
		return fmt.Errorf("unknown event db type")
	}

	switch c.DbType {
	case "badger":
		dataStoreConfig = []interface{}{c.DbDir, logger}
	default:
		return fmt.Errorf("unknown db type")
	}

	svc, err := db.NewService(db.ServiceConfig{
		EventStoreType:   c.EventDbType,
		DataStoreType:    c.DbType,
		EventStoreConfig: eventStoreConfig,
		DataStoreConfig:  dataStoreConfig,
	})
	if err != nil {
		return err
	}

	c.repo = svc
	return nil
}

func (c *Config) rngService() error {
	switch c.RngType {
	case "pseudo":
		c.rng = pseudorng.NewRandomnessSource(
			time.Duration(c.RngBlockTime) * time.Second,
		)
		return nil
	default:
		return fmt.Errorf("unknown rng type")
	}
}

func (c *Config) ledgerService() error {
	switch c.LedgerType {
	case "inmemory":
		c.ledger = inmemoryledger.NewLedgerService()
		return nil
	default:
		return fmt.Errorf("unknown ledger type")
	}
}

func (c *Config) schedulerService() error {
	switch c.SchedulerType {
	case "gocron":
		c.scheduler = timescheduler.NewScheduler()
		return nil
	default:
		return fmt.Errorf("unknown scheduler type")
	}
}

func (c *Config) appService() error {
	svc, err := application.NewService(
		c.TicketPrice,
		c.DrawInterval, c.PollInterval, c.DrawTimeout,
		ports.RandomWordsRequest{
			KeyHash:              c.RngKeyHash,
			SubscriptionId:       c.RngSubscriptionId,
			RequestConfirmations: c.RngConfirmations,
			CallbackGasLimit:     c.RngCallbackGasLimit,
			NumWords:             c.RngNumWords,
		},
		c.rng, c.ledger, c.repo, c.scheduler,
	)
	if err != nil {
		return err
	}

	c.svc = svc
	return nil
}
