package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a prepaid tenant balance, keyed by the 6-digit code the
// tenant enters on the keypad.
type Account struct {
	TenantCode         string          `gorm:"primaryKey;size:16" json:"tenant_code"`
	Name               string          `gorm:"size:128" json:"name"`
	Balance            decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"balance"`
	LastTransactionUTC time.Time       `json:"last_transaction_utc"`
}
