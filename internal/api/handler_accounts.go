package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"laundry-pay-backend/internal/ledger"
)

type putAccountRequest struct {
	TenantCode string          `json:"tenant_code" binding:"required"`
	Name       string          `json:"name"`
	Balance    decimal.Decimal `json:"balance"`
}

// PutAccount handles PUT /api/accounts: create or replace a tenant
// account with the given balance.
func (h *Handler) PutAccount(c *gin.Context) {
	var req putAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_code and balance required"})
		return
	}
	if req.Balance.IsNegative() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "balance must not be negative"})
		return
	}

	account, err := h.store.UpsertAccount(c.Request.Context(), req.TenantCode, req.Name, req.Balance)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.invalidateCache()
	c.JSON(http.StatusOK, account)
}

// GetAccounts handles GET /api/accounts.
func (h *Handler) GetAccounts(c *gin.Context) {
	accounts, err := h.store.Accounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

// GetAccount handles GET /api/accounts/:code.
func (h *Handler) GetAccount(c *gin.Context) {
	account, err := h.store.Account(c.Request.Context(), c.Param("code"))
	if err != nil {
		if errors.Is(err, ledger.ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, account)
}

// GetHistory handles GET /api/history?limit=N, newest transactions
// last.
func (h *Handler) GetHistory(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	history, err := h.store.History(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": history})
}
