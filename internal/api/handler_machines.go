package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"laundry-pay-backend/internal/arbiter"
	"laundry-pay-backend/internal/model"
)

// machineResponse flattens a machine and its availability verdict.
type machineResponse struct {
	ID               int             `json:"id"`
	Category         string          `json:"category"`
	Enabled          bool            `json:"enabled"`
	Price            decimal.Decimal `json:"price"`
	CycleMinutes     int             `json:"cycle_minutes"`
	State            string          `json:"state"`
	Source           string          `json:"source"`
	RemainingSeconds int             `json:"remaining_seconds,omitempty"`
}

func toMachineResponse(m model.Machine, st arbiter.Status) machineResponse {
	return machineResponse{
		ID:               m.ID,
		Category:         string(m.Category),
		Enabled:          m.Enabled,
		Price:            m.Price,
		CycleMinutes:     m.CycleMinutes,
		State:            string(st.State),
		Source:           string(st.Source),
		RemainingSeconds: int(st.Remaining.Seconds()),
	}
}

// GetMachines handles GET /api/machines.
func (h *Handler) GetMachines(c *gin.Context) {
	fleet := h.charger.Fleet()
	out := make([]machineResponse, 0, len(fleet))
	for _, m := range fleet {
		st, err := h.charger.Status(c.Request.Context(), m.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		out = append(out, toMachineResponse(m, st))
	}
	c.JSON(http.StatusOK, gin.H{"machines": out})
}

// GetMachine handles GET /api/machines/:id.
func (h *Handler) GetMachine(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid machine id"})
		return
	}
	m, ok := h.charger.Machine(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "machine not found"})
		return
	}
	st, err := h.charger.Status(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, toMachineResponse(m, st))
}
