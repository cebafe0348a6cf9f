package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/raffle-network/raffled/internal/core/application"
	log "github.com/sirupsen/logrus"
)

func init() {
	gin.SetMode(gin.ReleaseMode)
}

type Config struct {
	Port uint32
}

type Service struct {
	config Config
	appSvc application.Service
	server *http.Server
}

func NewService(config Config, appSvc application.Service) *Service {
	handler := newHandler(appSvc)

	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/v1")
	v1.POST("/round/enter", handler.enter)
	v1.GET("/round", handler.getRound)
	v1.GET("/round/entrants/:index", handler.getEntrant)
	v1.GET("/upkeep", handler.checkUpkeep)
	v1.POST("/upkeep", handler.performUpkeep)
	v1.GET("/winner", handler.getLastWinner)
	v1.GET("/info", handler.getInfo)
	v1.POST("/admin/reopen", handler.reopenDraw)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Port),
		Handler: router,
	}

	return &Service{config, appSvc, server}
}

func (s *Service) Start() error {
	if err := s.appSvc.Start(); err != nil {
		return err
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("web server exited")
		}
	}()

	log.Infof("web interface listening on %s", s.server.Addr)
	return nil
}

func (s *Service) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// nolint
	s.server.Shutdown(ctx)
	s.appSvc.Stop()
}
