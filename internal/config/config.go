package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	return fmt.Sprintf("%v", types)
}

func (t supportedType) supports(typeStr string) bool {
	_, ok := t[typeStr]
	return ok
}

var (
	supportedEventDbs = supportedType{
		"badger": {},
	}
	supportedDbs = supportedType{
		"badger": {},
	}
	supportedSchedulers = supportedType{
		"gocron": {},
	}
	supportedRngs = supportedType{
		"pseudo": {},
	}
	supportedLedgers = supportedType{
		"inmemory": {},
	}
)

type Config struct {
	Datadir  string
	Port     uint32
	LogLevel int

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
}

func (c *Config) String() string {
	json, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("error while marshalling config JSON: %s", err)
	}
	return string(json)
}

var (
	Datadir             = "DATADIR"
	Port                = "PORT"
	LogLevel            = "LOG_LEVEL"
	DbType              = "DB_TYPE"
	EventDbType         = "EVENT_DB_TYPE"
	SchedulerType       = "SCHEDULER_TYPE"
	RngType             = "RNG_TYPE"
	LedgerType          = "LEDGER_TYPE"
	TicketPrice         = "TICKET_PRICE"
	DrawInterval        = "DRAW_INTERVAL"
	PollInterval        = "POLL_INTERVAL"
	DrawTimeout         = "DRAW_TIMEOUT"
	RngKeyHash          = "RNG_KEY_HASH"
	RngSubscriptionId   = "RNG_SUBSCRIPTION_ID"
	RngConfirmations    = "RNG_CONFIRMATIONS"
	RngCallbackGasLimit = "RNG_CALLBACK_GAS_LIMIT"
	RngNumWords         = "RNG_NUM_WORDS"
	RngBlockTime        = "RNG_BLOCK_TIME"

	defaultDatadir             = appDataDir("raffled")
	defaultPort                = 7070
	defaultLogLevel            = 4
	defaultDbType              = "badger"
	defaultEventDbType         = "badger"
	defaultSchedulerType       = "gocron"
	defaultRngType             = "pseudo"
	defaultLedgerType          = "inmemory"
	defaultTicketPrice         = uint64(1000)
	defaultDrawInterval        = int64(3600)
	defaultPollInterval        = int64(10)
	defaultDrawTimeout         = int64(0) // watchdog disabled
	defaultRngKeyHash          = "0x474e34a077df58807dbe9c96d3c009b23b3c6d0cce433e59bbf5b34f823bc56c"
	defaultRngSubscriptionId   = uint64(1)
	defaultRngConfirmations    = uint32(3)
	defaultRngCallbackGasLimit = uint32(500000)
	defaultRngNumWords         = uint32(1)
	defaultRngBlockTime        = int64(1)
)

func LoadConfig() (*Config, error) {
	viper.SetEnvPrefix("RAFFLE")
	viper.AutomaticEnv()

	viper.SetDefault(Datadir, defaultDatadir)
	viper.SetDefault(Port, defaultPort)
	viper.SetDefault(LogLevel, defaultLogLevel)
	viper.SetDefault(DbType, defaultDbType)
	viper.SetDefault(EventDbType, defaultEventDbType)
	viper.SetDefault(SchedulerType, defaultSchedulerType)
	viper.SetDefault(RngType, defaultRngType)
	viper.SetDefault(LedgerType, defaultLedgerType)
	viper.SetDefault(TicketPrice, defaultTicketPrice)
	viper.SetDefault(DrawInterval, defaultDrawInterval)
	viper.SetDefault(PollInterval, defaultPollInterval)
	viper.SetDefault(DrawTimeout, defaultDrawTimeout)
	viper.SetDefault(RngKeyHash, defaultRngKeyHash)
	viper.SetDefault(RngSubscriptionId, defaultRngSubscriptionId)
	viper.SetDefault(RngConfirmations, defaultRngConfirmations)
	viper.SetDefault(RngCallbackGasLimit, defaultRngCallbackGasLimit)
	viper.SetDefault(RngNumWords, defaultRngNumWords)
	viper.SetDefault(RngBlockTime, defaultRngBlockTime)

	if err := initDatadir(); err != nil {
		return nil, fmt.Errorf("error while creating datadir: %s", err)
	}

	dbPath := filepath.Join(viper.GetString(Datadir), "db")

	return &Config{
		Datadir:             viper.GetString(Datadir),
		Port:                viper.GetUint32(Port),
		LogLevel:            viper.GetInt(LogLevel),
		DbType:              viper.GetString(DbType),
		EventDbType:         viper.GetString(EventDbType),
		DbDir:               dbPath,
		EventDbDir:          dbPath,
		SchedulerType:       viper.GetString(SchedulerType),
		RngType:             viper.GetString(RngType),
		LedgerType:          viper.GetString(LedgerType),
		TicketPrice:         viper.GetUint64(TicketPrice),
		DrawInterval:        viper.GetInt64(DrawInterval),
		PollInterval:        viper.GetInt64(PollInterval),
		DrawTimeout:         viper.GetInt64(DrawTimeout),
		RngKeyHash:          viper.GetString(RngKeyHash),
		RngSubscriptionId:   viper.GetUint64(RngSubscriptionId),
		RngConfirmations:    viper.GetUint32(RngConfirmations),
		RngCallbackGasLimit: viper.GetUint32(RngCallbackGasLimit),
		RngNumWords:         viper.GetUint32(RngNumWords),
		RngBlockTime:        viper.GetInt64(RngBlockTime),
	}, nil
}

func (c *Config) Validate() error {
	if !supportedEventDbs.supports(c.EventDbType) {
		return fmt.Errorf("event db type not supported, please select one of: %s", supportedEventDbs)
	}
	if !supportedDbs.supports(c.DbType) {
		return fmt.Errorf("db type not supported, please select one of: %s", supportedDbs)
	}
	if !supportedSchedulers.supports(c.SchedulerType) {
		return fmt.Errorf("scheduler type not supported, please select one of: %s", supportedSchedulers)
	}
	if !supportedRngs.supports(c.RngType) {
		return fmt.Errorf("rng type not supported, please select one of: %s", supportedRngs)
	}
	if !supportedLedgers.supports(c.LedgerType) {
		return fmt.Errorf("ledger type not supported, please select one of: %s", supportedLedgers)
	}
	if c.TicketPrice <= 0 {
		return fmt.Errorf("ticket price must be positive")
	}
	if c.DrawInterval <= 0 {
		return fmt.Errorf("draw interval must be positive")
	}
	if c.RngNumWords <= 0 {
		return fmt.Errorf("rng word count must be positive")
	}
	return nil
}

func initDatadir() error {
	datadir := viper.GetString(Datadir)
	return makeDirectoryIfNotExists(datadir)
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

func appDataDir(appName string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(home, "."+appName)
}
