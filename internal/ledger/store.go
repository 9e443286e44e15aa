// Package ledger is the durable, lock-guarded account balance store and
// append-only transaction log behind the charge flow.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"laundry-pay-backend/internal/model"
)

// Sentinel errors for the two policy denials the store itself decides.
var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Store defines the ledger operations used by the charge orchestrator
// and the API layer.
type Store interface {
	// Account fetches one account; ErrTenantNotFound when absent.
	Account(ctx context.Context, tenantCode string) (*model.Account, error)

	// UpsertAccount creates or replaces an account balance.
	UpsertAccount(ctx context.Context, tenantCode, name string, balance decimal.Decimal) (*model.Account, error)

	// Accounts lists all accounts ordered by tenant code.
	Accounts(ctx context.Context) ([]model.Account, error)

	// Precheck verifies existence and balance sufficiency under the
	// ledger lock. An insufficient balance appends a zero-amount failed
	// transaction before returning ErrInsufficientFunds. Returns the
	// balance observed.
	Precheck(ctx context.Context, tenantCode string, price decimal.Decimal, machine, minutes int) (decimal.Decimal, error)

	// CommitCharge re-reads the account under the ledger lock,
	// re-validates sufficiency, debits the price, stamps the account
	// and appends the successful transaction, all in one database
	// transaction. Returns balance before and after.
	CommitCharge(ctx context.Context, tenantCode string, machine int, price decimal.Decimal, minutes int) (before, after decimal.Decimal, err error)

	// RecordFailure appends a zero-amount failed transaction carrying
	// the account's current balance. Missing accounts record zero.
	RecordFailure(ctx context.Context, tenantCode string, machine, minutes int) error

	// History returns the most recent transactions, oldest first,
	// bounded by limit.
	History(ctx context.Context, limit int) ([]model.Transaction, error)

	// DB exposes the underlying handle for collaborators that manage
	// their own tables (push subscriptions).
	DB() *gorm.DB
}

// gormStore implements Store. The mutex is the process-wide ledger lock:
// every balance read-modify-write is serialized through it, which keeps
// the ledger linearizable at the cost of being a soft bottleneck,
// fine for a six-machine fleet.
type gormStore struct {
	db *gorm.DB
	mu sync.Mutex
}

// NewGormStore creates a new GORM-backed ledger store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB { return s.db }

func (s *gormStore) Account(ctx context.Context, tenantCode string) (*model.Account, error) {
	var acc model.Account
	err := s.db.WithContext(ctx).First(&acc, "tenant_code = ?", tenantCode).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch account %s: %w", tenantCode, err)
	}
	return &acc, nil
}

func (s *gormStore) UpsertAccount(ctx context.Context, tenantCode, name string, balance decimal.Decimal) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := model.Account{
		TenantCode:         tenantCode,
		Name:               name,
		Balance:            balance,
		LastTransactionUTC: time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "balance", "last_transaction_utc"}),
	}).Create(&acc).Error
	if err != nil {
		return nil, fmt.Errorf("upsert account %s: %w", tenantCode, err)
	}
	return &acc, nil
}

func (s *gormStore) Accounts(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	if err := s.db.WithContext(ctx).Order("tenant_code").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (s *gormStore) Precheck(ctx context.Context, tenantCode string, price decimal.Decimal, machine, minutes int) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, err := s.Account(ctx, tenantCode)
	if err != nil {
		return decimal.Zero, err
	}
	if acc.Balance.LessThan(price) {
		if err := s.appendTransaction(ctx, s.db, failedTransaction(tenantCode, machine, acc.Balance, minutes)); err != nil {
			return acc.Balance, err
		}
		return acc.Balance, ErrInsufficientFunds
	}
	return acc.Balance, nil
}

func (s *gormStore) CommitCharge(ctx context.Context, tenantCode string, machine int, price decimal.Decimal, minutes int) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var before, after decimal.Decimal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acc model.Account
		if err := tx.First(&acc, "tenant_code = ?", tenantCode).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTenantNotFound
			}
			return fmt.Errorf("re-read account %s: %w", tenantCode, err)
		}

		before = acc.Balance
		if before.LessThan(price) {
			// Audit the denial inside the same transaction.
			if err := s.appendTransaction(ctx, tx, failedTransaction(tenantCode, machine, before, minutes)); err != nil {
				return err
			}
			after = before
			return ErrInsufficientFunds
		}

		after = before.Sub(price)
		acc.Balance = after
		acc.LastTransactionUTC = time.Now().UTC()
		if err := tx.Save(&acc).Error; err != nil {
			return fmt.Errorf("write account %s: %w", tenantCode, err)
		}

		return s.appendTransaction(ctx, tx, model.Transaction{
			Timestamp:     time.Now().UTC(),
			TenantCode:    tenantCode,
			MachineNumber: machine,
			AmountCharged: price,
			BalanceBefore: before,
			BalanceAfter:  after,
			CycleMinutes:  minutes,
			Success:       true,
		})
	})
	return before, after, err
}

func (s *gormStore) RecordFailure(ctx context.Context, tenantCode string, machine, minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance := decimal.Zero
	if acc, err := s.Account(ctx, tenantCode); err == nil {
		balance = acc.Balance
	}
	return s.appendTransaction(ctx, s.db, failedTransaction(tenantCode, machine, balance, minutes))
}

func (s *gormStore) History(ctx context.Context, limit int) ([]model.Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	var txs []model.Transaction
	err := s.db.WithContext(ctx).
		Order("id DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("transaction history: %w", err)
	}
	// Oldest first, like tailing the log.
	for i, j := 0, len(txs)-1; i < j; i, j = i+1, j-1 {
		txs[i], txs[j] = txs[j], txs[i]
	}
	return txs, nil
}

func (s *gormStore) appendTransaction(ctx context.Context, db *gorm.DB, rec model.Transaction) error {
	if err := db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	return nil
}

func failedTransaction(tenantCode string, machine int, balance decimal.Decimal, minutes int) model.Transaction {
	return model.Transaction{
		Timestamp:     time.Now().UTC(),
		TenantCode:    tenantCode,
		MachineNumber: machine,
		AmountCharged: decimal.Zero,
		BalanceBefore: balance,
		BalanceAfter:  balance,
		CycleMinutes:  minutes,
		Success:       false,
	}
}
