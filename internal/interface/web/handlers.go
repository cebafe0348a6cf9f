package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/raffle-network/raffled/internal/core/application"
	"github.com/raffle-network/raffled/internal/core/domain"
)

type handler struct {
	appSvc application.Service
}

func newHandler(appSvc application.Service) *handler {
	return &handler{appSvc}
}

type enterRequest struct {
	Address string `json:"address" binding:"required"`
	Amount  uint64 `json:"amount" binding:"required"`
}

func (h *handler) enter(c *gin.Context) {
	var req enterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	round, err := h.appSvc.Enter(c.Request.Context(), req.Address, req.Amount)
	if err != nil {
		var insufficientPayment application.InsufficientPaymentError
		if errors.As(err, &insufficientPayment) {
			c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, application.ErrRoundClosed) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"round_id":     round.Id,
		"num_entrants": len(round.Entrants),
	})
}

func (h *handler) getRound(c *gin.Context) {
	round, err := h.appSvc.GetCurrentRound(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, roundView(round))
}

func (h *handler) getEntrant(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid index"})
		return
	}

	entrant, err := h.appSvc.GetEntrant(c.Request.Context(), index)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":   entrant.Address,
		"amount":    entrant.Amount,
		"timestamp": entrant.Timestamp,
	})
}

func (h *handler) checkUpkeep(c *gin.Context) {
	upkeepNeeded, payload, err := h.appSvc.CheckUpkeep(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"upkeep_needed": upkeepNeeded,
		"payload":       payload,
	})
}

func (h *handler) performUpkeep(c *gin.Context) {
	requestId, err := h.appSvc.PerformUpkeep(c.Request.Context())
	if err != nil {
		var upkeepNotNeeded application.UpkeepNotNeededError
		if errors.As(err, &upkeepNotNeeded) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":        err.Error(),
				"balance":      upkeepNotNeeded.Balance,
				"num_entrants": upkeepNotNeeded.NumEntrants,
				"stage":        upkeepNotNeeded.Stage.String(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"request_id": requestId})
}

func (h *handler) getLastWinner(c *gin.Context) {
	winner, err := h.appSvc.GetLastWinner(c.Request.Context())
	if err != nil {
		if errors.Is(err, application.ErrNoWinnerYet) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"winner": winner})
}

func (h *handler) getInfo(c *gin.Context) {
	info, err := h.appSvc.GetInfo(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ticket_price":    info.TicketPrice,
		"draw_interval":   info.DrawInterval,
		"draw_timeout":    info.DrawTimeout,
		"stage":           info.Stage,
		"round_id":        info.CurrentRoundId,
		"num_entrants":    info.NumEntrants,
		"pool_balance":    info.PoolBalance,
		"window_start":    info.WindowStart,
		"last_winner":     info.LastWinner,
		"key_hash":        info.Randomness.KeyHash,
		"subscription_id": info.Randomness.SubscriptionId,
		"confirmations":   info.Randomness.RequestConfirmations,
		"gas_limit":       info.Randomness.CallbackGasLimit,
		"num_words":       info.Randomness.NumWords,
	})
}

func (h *handler) reopenDraw(c *gin.Context) {
	if err := h.appSvc.ReopenDraw(c.Request.Context()); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{})
}

func roundView(round *domain.Round) gin.H {
	entrants := make([]gin.H, 0, len(round.Entrants))
	for _, entrant := range round.Entrants {
		entrants = append(entrants, gin.H{
			"address":   entrant.Address,
			"amount":    entrant.Amount,
			"timestamp": entrant.Timestamp,
		})
	}

	return gin.H{
		"id":           round.Id,
		"stage":        round.Stage.Code.String(),
		"ticket_price": round.TicketPrice,
		"window_start": round.StartingTimestamp,
		"request_id":   round.RequestId,
		"entrants":     entrants,
	}
}
