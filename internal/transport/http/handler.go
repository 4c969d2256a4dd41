package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/address-ledger/internal/ledger"
	"github.com/richardliu001/address-ledger/internal/model"
	"github.com/richardliu001/address-ledger/internal/repo"
	"github.com/richardliu001/address-ledger/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BuildInfo is reported by the liveness endpoint.
type BuildInfo struct {
	Name      string
	Version   string
	StartedAt time.Time
}

func RegisterHandlers(r *gin.Engine, svc *service.LedgerService, info BuildInfo, log *zap.SugaredLogger) {
	api := r.Group("/api")
	{
		api.GET("/alive", aliveHandler(info))
		api.GET("/transactions", listTransactionsHandler(svc, log))
		api.GET("/transactions/:address", addressTransactionsHandler(svc, log))
		api.POST("/transactions", createTransactionHandler(svc, log))
		api.GET("/wallet/balance/:address", balanceHandler(svc, log))
	}
}

func aliveHandler(info BuildInfo) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "%s Version: %s\nSince: %s",
			info.Name, info.Version, info.StartedAt.UTC().Format("2006-01-02 15:04:05"))
	}
}

func listTransactionsHandler(svc *service.LedgerService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid limit"})
			return
		}
		txs, err := svc.ListTransactions(c, limit)
		if err != nil {
			storageError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, nonNil(txs))
	}
}

func addressTransactionsHandler(svc *service.LedgerService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		txs, err := svc.History(c, c.Param("address"))
		if err != nil {
			storageError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, nonNil(txs))
	}
}

type createTransactionReq struct {
	AddressFrom     string                `json:"address_from"`
	AddressTo       string                `json:"address_to"`
	Amount          decimal.Decimal       `json:"amount"`
	TransactionType model.TransactionType `json:"transaction_type" binding:"required"`
}

func (r createTransactionReq) candidate() model.Transaction {
	return model.Transaction{
		AddressFrom: r.AddressFrom,
		AddressTo:   r.AddressTo,
		Amount:      r.Amount,
		Type:        r.TransactionType,
	}
}

func createTransactionHandler(svc *service.LedgerService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTransactionReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("invalid request: %v", err)})
			return
		}
		stored, err := svc.CreateTransaction(c, req.candidate())
		if err != nil {
			var verr *ledger.ValidationError
			switch {
			case errors.As(err, &verr):
				msgs := verr.Violations.Messages()
				c.JSON(http.StatusUnprocessableEntity, gin.H{"message": msgs[0], "errors": msgs})
			case errors.Is(err, model.ErrAmountOutOfRange):
				c.JSON(http.StatusBadRequest, gin.H{"message": fmt.Sprintf("invalid request: %v", err)})
			case errors.Is(err, repo.ErrLockTimeout), errors.Is(err, repo.ErrLockLost):
				c.JSON(http.StatusConflict, gin.H{"message": "source address is busy, retry later"})
			default:
				storageError(c, log, err)
			}
			return
		}
		c.JSON(http.StatusCreated, stored)
	}
}

func balanceHandler(svc *service.LedgerService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address")
		bal, err := svc.GetBalance(c, address)
		if err != nil {
			storageError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"address": address, "balance": bal})
	}
}

func storageError(c *gin.Context, log *zap.SugaredLogger, err error) {
	log.Errorw("request failed", "path", c.FullPath(), "request_id", c.GetString("request_id"), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Database error occurred"})
}

func nonNil(txs []model.Transaction) []model.Transaction {
	if txs == nil {
		return []model.Transaction{}
	}
	return txs
}
