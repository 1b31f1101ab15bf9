package repository

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/domain/account"
	"github.com/amirasaad/retailpay/pkg/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ledgerStore struct {
	db       *gorm.DB
	timeouts Timeouts
}

// NewLedgerStore creates a gorm backed ledger store. Balance changes take a
// row lock on every touched account; transfers lock in ascending id order.
func NewLedgerStore(db *gorm.DB, timeouts Timeouts) repository.LedgerStore {
	return &ledgerStore{db: db, timeouts: timeouts}
}

// transaction opens a transaction (a savepoint when already inside one) and
// applies the lock and statement timeouts for PostgreSQL.
func (s *ledgerStore) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.applyTimeouts(tx); err != nil {
			return err
		}
		return fn(tx)
	})
	return MapGormErrorToDomain(err)
}

func (s *ledgerStore) applyTimeouts(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	if s.timeouts.LockWait > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.timeouts.LockWait.Milliseconds())
		if err := tx.Exec(stmt).Error; err != nil {
			return err
		}
	}
	if s.timeouts.Statement > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", s.timeouts.Statement.Milliseconds())
		if err := tx.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func lockAccount(tx *gorm.DB, id uuid.UUID) (*account.Account, error) {
	var m Account
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&m).Error
	if err != nil {
		return nil, notFound(err, account.ErrAccountNotFound)
	}
	return toAccountDomain(&m), nil
}

// saveBalance writes the new balance, guarded by the version read under lock.
func saveBalance(tx *gorm.DB, a *account.Account) error {
	res := tx.Model(&Account{}).
		Where("id = ? AND version = ?", a.ID, a.Version).
		Updates(map[string]any{
			"balance":    a.Balance,
			"status":     string(a.Status),
			"version":    a.Version + 1,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: account %s was modified concurrently", domain.ErrConflict, a.ID)
	}
	a.Version++
	return nil
}

// CreateAccount implements repository.LedgerStore.
func (s *ledgerStore) CreateAccount(ctx context.Context, a *account.Account) error {
	return WrapError(func() error {
		return s.db.WithContext(ctx).Create(toAccountModel(a)).Error
	})
}

// GetAccount implements repository.LedgerStore.
func (s *ledgerStore) GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	var m Account
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, notFound(err, account.ErrAccountNotFound)
	}
	return toAccountDomain(&m), nil
}

// SetAccountStatus implements repository.LedgerStore.
func (s *ledgerStore) SetAccountStatus(
	ctx context.Context,
	id uuid.UUID,
	status account.Status,
) (*account.Account, error) {
	var out *account.Account
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		a, err := lockAccount(tx, id)
		if err != nil {
			return err
		}
		if err := a.Transition(status); err != nil {
			return err
		}
		if err := saveBalance(tx, a); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// AppendTransaction implements repository.LedgerStore.
func (s *ledgerStore) AppendTransaction(
	ctx context.Context,
	accountID uuid.UUID,
	txType account.TransactionType,
	amount decimal.Decimal,
	description string,
) (*account.Transaction, decimal.Decimal, error) {
	var (
		out     *account.Transaction
		balance decimal.Decimal
	)
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		a, err := lockAccount(tx, accountID)
		if err != nil {
			return err
		}
		newBalance, err := a.Apply(txType, amount)
		if err != nil {
			return err
		}
		t := account.NewTransaction(a.ID, txType, amount, newBalance, description)
		if err := tx.Create(toTransactionModel(t)).Error; err != nil {
			return err
		}
		if err := saveBalance(tx, a); err != nil {
			return err
		}
		out, balance = t, newBalance
		return nil
	})
	if err != nil {
		return nil, decimal.Zero, err
	}
	return out, balance, nil
}

// AppendLinkedPair implements repository.LedgerStore.
func (s *ledgerStore) AppendLinkedPair(
	ctx context.Context,
	fromID, toID uuid.UUID,
	amount decimal.Decimal,
	description string,
) (*account.Transaction, *account.Transaction, error) {
	if fromID == toID {
		return nil, nil, account.ErrCannotTransferToSameAccount
	}
	var outTx, inTx *account.Transaction
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		locked := make(map[uuid.UUID]*account.Account, 2)
		for _, id := range lockOrder(fromID, toID) {
			a, err := lockAccount(tx, id)
			if err != nil {
				return err
			}
			locked[id] = a
		}
		from, to := locked[fromID], locked[toID]
		if from.Currency != to.Currency {
			return account.ErrCurrencyMismatch
		}

		fromBalance, err := from.Apply(account.TransactionTypeTransferOut, amount)
		if err != nil {
			return err
		}
		toBalance, err := to.Apply(account.TransactionTypeTransferIn, amount)
		if err != nil {
			return err
		}

		out := account.NewTransaction(from.ID, account.TransactionTypeTransferOut, amount, fromBalance, description)
		in := account.NewTransaction(to.ID, account.TransactionTypeTransferIn, amount, toBalance, description)
		account.Link(out, in)

		rows := []*Transaction{toTransactionModel(out), toTransactionModel(in)}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}
		if err := saveBalance(tx, from); err != nil {
			return err
		}
		if err := saveBalance(tx, to); err != nil {
			return err
		}
		outTx, inTx = out, in
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outTx, inTx, nil
}

// ListTransactions implements repository.LedgerStore. Newest first.
func (s *ledgerStore) ListTransactions(
	ctx context.Context,
	accountID uuid.UUID,
	limit, offset int,
) ([]*account.Transaction, error) {
	var rows []Transaction
	q := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Order("id")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]*account.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, toTransactionDomain(&rows[i]))
	}
	return out, nil
}

// lockOrder returns the two ids in the global lock order.
func lockOrder(a, b uuid.UUID) []uuid.UUID {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return []uuid.UUID{a, b}
	}
	return []uuid.UUID{b, a}
}
