package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is one append-only audit row per charge attempt. Failed
// attempts are recorded too, with a zero amount and Success=false.
type Transaction struct {
	ID            int64           `gorm:"autoIncrement;primaryKey" json:"-"`
	Timestamp     time.Time       `gorm:"not null;index" json:"timestamp"`
	TenantCode    string          `gorm:"size:16;not null;index" json:"tenant_code"`
	MachineNumber int             `gorm:"not null" json:"machine_number"`
	AmountCharged decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"amount_charged"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"balance_before"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"balance_after"`
	CycleMinutes  int             `gorm:"not null" json:"cycle_minutes"`
	Success       bool            `gorm:"not null" json:"success"`
}
