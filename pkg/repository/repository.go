package repository

import (
	"context"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain/account"
	"github.com/amirasaad/retailpay/pkg/domain/order"
	"github.com/amirasaad/retailpay/pkg/domain/session"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerStore is the durable record of accounts and their transactions.
// Every mutating call runs in one storage transaction that also writes the
// updated balance; a failure reverts every write of that call.
type LedgerStore interface {
	CreateAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error)
	SetAccountStatus(ctx context.Context, id uuid.UUID, status account.Status) (*account.Account, error)
	AppendTransaction(
		ctx context.Context,
		accountID uuid.UUID,
		txType account.TransactionType,
		amount decimal.Decimal,
		description string,
	) (*account.Transaction, decimal.Decimal, error)
	AppendLinkedPair(
		ctx context.Context,
		fromID, toID uuid.UUID,
		amount decimal.Decimal,
		description string,
	) (*account.Transaction, *account.Transaction, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*account.Transaction, error)
}

// OrderRepository persists orders and their line items.
type OrderRepository interface {
	Create(ctx context.Context, o *order.Order) error
	Get(ctx context.Context, id uuid.UUID) (*order.Order, error)
	// GetForUpdate loads the order and holds its row lock until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error)
	Update(ctx context.Context, o *order.Order) error
	MarkItemDecremented(ctx context.Context, itemID uuid.UUID) error
	UpdateInventorySync(ctx context.Context, id uuid.UUID, sync order.InventorySync, attempts int) error
	ListInventoryPending(ctx context.Context, maxAttempts, limit int) ([]*order.Order, error)
}

// PaymentRepository persists payments.
type PaymentRepository interface {
	Create(ctx context.Context, p *order.Payment) error
	Get(ctx context.Context, id uuid.UUID) (*order.Payment, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Payment, error)
	Update(ctx context.Context, p *order.Payment) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*order.Payment, error)
}

// SessionRepository persists gateway sessions. State changes are
// compare-and-set: they only apply when the stored state matches.
type SessionRepository interface {
	Create(ctx context.Context, s *session.Session) error
	Get(ctx context.Context, id uuid.UUID) (*session.Session, error)
	GetByToken(ctx context.Context, token string) (*session.Session, error)
	FindActiveByPayment(ctx context.Context, paymentID uuid.UUID) (*session.Session, error)
	FindByPayment(ctx context.Context, paymentID uuid.UUID, state session.State) (*session.Session, error)
	ConfirmByToken(ctx context.Context, token string, next session.State, authCode string) (bool, error)
	MarkVoided(ctx context.Context, id uuid.UUID, reason string) (bool, error)
	// ListUnreconciled returns sessions whose outcome has not been applied to
	// their payment yet.
	ListUnreconciled(ctx context.Context, limit int) ([]*session.Session, error)
}

// IdempotencyRecord is a stored HTTP response keyed by the client's Idempotency-Key.
type IdempotencyRecord struct {
	Key       string
	Method    string
	Path      string
	Status    int
	Body      []byte
	CreatedAt time.Time
}

// IdempotencyRepository stores replayable responses.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	Save(ctx context.Context, rec *IdempotencyRecord) error
}
