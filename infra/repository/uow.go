package repository

import (
	"context"
	"time"

	"github.com/amirasaad/retailpay/pkg/repository"
	"gorm.io/gorm"
)

// Timeouts bound how long a ledger transaction may wait on row locks and
// how long any single statement may run. Zero disables the bound.
type Timeouts struct {
	LockWait  time.Duration
	Statement time.Duration
}

// UoW provides transaction boundary and repository access in one abstraction.
// Repositories built from a UoW inside Do share its transaction.
type UoW struct {
	db       *gorm.DB
	tx       *gorm.DB
	timeouts Timeouts
}

// NewUoW creates a new UoW for the given *gorm.DB.
func NewUoW(db *gorm.DB, timeouts Timeouts) *UoW {
	return &UoW{db: db, timeouts: timeouts}
}

// Do runs fn in a transaction. Called on a unit that is already inside a
// transaction it opens a savepoint, so a failing fn only rolls back its own
// writes.
func (u *UoW) Do(ctx context.Context, fn func(uow repository.UnitOfWork) error) error {
	return u.session().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&UoW{db: u.db, tx: tx, timeouts: u.timeouts})
	})
}

func (u *UoW) session() *gorm.DB {
	if u.tx != nil {
		return u.tx
	}
	return u.db
}

// LedgerStore returns the ledger store bound to the current session.
func (u *UoW) LedgerStore() (repository.LedgerStore, error) {
	return NewLedgerStore(u.session(), u.timeouts), nil
}

// OrderRepository returns the order repository bound to the current session.
func (u *UoW) OrderRepository() (repository.OrderRepository, error) {
	return NewOrderRepository(u.session()), nil
}

// PaymentRepository returns the payment repository bound to the current session.
func (u *UoW) PaymentRepository() (repository.PaymentRepository, error) {
	return NewPaymentRepository(u.session()), nil
}

// SessionRepository returns the gateway session repository bound to the current session.
func (u *UoW) SessionRepository() (repository.SessionRepository, error) {
	return NewSessionRepository(u.session()), nil
}

// IdempotencyRepository returns the idempotency key repository bound to the current session.
func (u *UoW) IdempotencyRepository() (repository.IdempotencyRepository, error) {
	return NewIdempotencyRepository(u.session()), nil
}

var _ repository.UnitOfWork = (*UoW)(nil)
