package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"laundry-pay-backend/internal/charge"
)

type chargeRequest struct {
	TenantCode   string           `json:"tenant_code" binding:"required"`
	Machine      int              `json:"machine" binding:"required"`
	Price        *decimal.Decimal `json:"price"`
	CycleMinutes *int             `json:"cycle_minutes"`
}

// statusForCode maps a charge failure to its HTTP status.
func statusForCode(code charge.FailureCode) int {
	switch code {
	case charge.CodeInvalidInput, charge.CodePriceNotDefined:
		return http.StatusBadRequest
	case charge.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case charge.CodeTenantNotFound:
		return http.StatusNotFound
	case charge.CodeMachineBusy:
		return http.StatusConflict
	case charge.CodeMachineDisabled:
		return http.StatusLocked
	case charge.CodeLockTimeout:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PostCharge handles POST /api/charge.
func (h *Handler) PostCharge(c *gin.Context) {
	h.handleCharge(c, h.charger.Charge)
}

// PostSimulateCharge handles POST /api/charge/simulate: the full flow
// with actuation skipped, for dry runs against a live ledger.
func (h *Handler) PostSimulateCharge(c *gin.Context) {
	h.handleCharge(c, h.charger.Simulate)
}

func (h *Handler) handleCharge(c *gin.Context, run func(ctx context.Context, req charge.Request) (*charge.Receipt, error)) {
	var req chargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": string(charge.CodeInvalidInput)})
		return
	}

	receipt, err := run(c.Request.Context(), charge.Request{
		TenantCode:   req.TenantCode,
		Machine:      req.Machine,
		Price:        req.Price,
		CycleMinutes: req.CycleMinutes,
	})
	if err != nil {
		code, ok := charge.CodeOf(err)
		if !ok {
			code = charge.CodeActivationFailed
		}
		c.JSON(statusForCode(code), gin.H{"error": string(code)})
		return
	}

	h.invalidateCache()
	c.JSON(http.StatusOK, receipt)
}
