package repository

import "context"

// UnitOfWork provides a transaction boundary and repository access in one
// abstraction. Repositories obtained inside Do share the transaction; Do
// called on a transactional unit nests through a savepoint.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(uow UnitOfWork) error) error

	LedgerStore() (LedgerStore, error)
	OrderRepository() (OrderRepository, error)
	PaymentRepository() (PaymentRepository, error)
	SessionRepository() (SessionRepository, error)
	IdempotencyRepository() (IdempotencyRepository, error)
}
