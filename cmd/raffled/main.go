package main

import (
	"os"
	"os/signal"
	"syscall"

	appconfig "github.com/raffle-network/raffled/internal/app-config"
	"github.com/raffle-network/raffled/internal/config"
	"github.com/raffle-network/raffled/internal/interface/web"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

//nolint:all
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "raffled",
		Usage:   "randomized-draw lottery coordinator",
		Version: version,
		Flags:   []cli.Flag{urlFlag},
		Action:  daemonAction,
		Commands: cli.Commands{
			infoCmd,
			winnerCmd,
			upkeepCmd,
			adminCmd,
		},
	}
}

func daemonAction(_ *cli.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid config")
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid config")
	}

	log.SetLevel(log.Level(cfg.LogLevel))

	appConfig := &appconfig.Config{
		DbType:              cfg.DbType,
		EventDbType:         cfg.EventDbType,
		DbDir:               cfg.DbDir,
		EventDbDir:          cfg.EventDbDir,
		SchedulerType:       cfg.SchedulerType,
		RngType:             cfg.RngType,
		LedgerType:          cfg.LedgerType,
		TicketPrice:         cfg.TicketPrice,
		DrawInterval:        cfg.DrawInterval,
		PollInterval:        cfg.PollInterval,
		DrawTimeout:         cfg.DrawTimeout,
		RngKeyHash:          cfg.RngKeyHash,
		RngSubscriptionId:   cfg.RngSubscriptionId,
		RngConfirmations:    cfg.RngConfirmations,
		RngCallbackGasLimit: cfg.RngCallbackGasLimit,
		RngNumWords:         cfg.RngNumWords,
		RngBlockTime:        cfg.RngBlockTime,
	}
	if err := appConfig.Validate(); err != nil {
		log.WithError(err).Fatal("invalid app config")
	}

	appSvc, err := appConfig.AppService()
	if err != nil {
		log.WithError(err).Fatal("failed to create app service")
	}

	svc := web.NewService(web.Config{Port: cfg.Port}, appSvc)

	log.RegisterExitHandler(svc.Stop)

	log.Info("starting service...")
	if err := svc.Start(); err != nil {
		log.Fatal(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, os.Interrupt)
	<-sigChan

	log.Info("shutting down service...")
	log.Exit(0)
	return nil
}
