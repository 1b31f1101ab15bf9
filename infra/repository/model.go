package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Account represents an account record in the database.
type Account struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey"`
	ClientID  uuid.UUID       `gorm:"type:uuid;index;not null"`
	Currency  string          `gorm:"type:varchar(3);not null"`
	Balance   decimal.Decimal `gorm:"type:numeric(20,2);not null;check:chk_accounts_balance_non_negative,balance >= 0"`
	Status    string          `gorm:"type:varchar(16);not null;index"`
	Version   int64           `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is a completed ledger movement. Rows are never updated or deleted.
type Transaction struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey"`
	AccountID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_ledger_transactions_account_created,priority:1"`
	Type          string          `gorm:"type:varchar(16);not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Status        string          `gorm:"type:varchar(16);not null"`
	CounterpartID *uuid.UUID      `gorm:"type:uuid"`
	Description   string          `gorm:"type:varchar(255)"`
	CreatedAt     time.Time       `gorm:"index:idx_ledger_transactions_account_created,priority:2"`
}

// TableName keeps ledger rows apart from the word "transaction" in SQL.
func (Transaction) TableName() string { return "ledger_transactions" }

// GatewaySession is a card gateway attempt. At most one initiated or
// confirmed session exists per payment, enforced by a partial unique index.
type GatewaySession struct {
	ID         uuid.UUID       `gorm:"type:uuid;primaryKey"`
	PaymentID  uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_gateway_sessions_active_payment,where:state <> 'failed' AND state <> 'voided'"`
	Token      string          `gorm:"type:varchar(64);not null;uniqueIndex"`
	Amount     decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Currency   string          `gorm:"type:varchar(3);not null"`
	ReturnURL  string          `gorm:"type:varchar(512)"`
	State      string          `gorm:"type:varchar(16);not null;index"`
	AuthCode   string          `gorm:"type:varchar(64)"`
	VoidReason string          `gorm:"type:varchar(255)"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Order represents an order record in the database.
type Order struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Code               string          `gorm:"type:varchar(32);not null;uniqueIndex"`
	ClientID           uuid.UUID       `gorm:"type:uuid;not null;index"`
	BranchID           string          `gorm:"type:varchar(64);not null"`
	DeliveryMethod     string          `gorm:"type:varchar(16);not null"`
	Subtotal           decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Tax                decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Shipping           decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Total              decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Currency           string          `gorm:"type:varchar(3);not null"`
	SourceCurrency     string          `gorm:"type:varchar(3);not null"`
	FxRate             decimal.Decimal `gorm:"type:numeric(20,8);not null"`
	Status             string          `gorm:"type:varchar(16);not null;index"`
	InventoryTriggered bool            `gorm:"not null;default:false"`
	InventorySync      string          `gorm:"type:varchar(16);not null;index"`
	InventoryAttempts  int             `gorm:"not null;default:0"`
	Items              []OrderItem     `gorm:"foreignKey:OrderID"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// OrderItem is an order line with its per-line decrement flag.
type OrderItem struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID              uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID            string          `gorm:"type:varchar(64);not null"`
	Quantity             int             `gorm:"not null"`
	UnitPrice            decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	LineTotal            decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	InventoryDecremented bool            `gorm:"not null;default:false"`
}

// Payment represents a payment attempt record in the database.
type Payment struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	Method          string          `gorm:"type:varchar(16);not null"`
	Amount          decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	SourceAccountID *uuid.UUID      `gorm:"type:uuid"`
	ProcessorRef    string          `gorm:"type:varchar(128)"`
	Status          string          `gorm:"type:varchar(16);not null;index"`
	FailureReason   string          `gorm:"type:varchar(255)"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IdempotencyKey stores the response of a request made with an Idempotency-Key header.
type IdempotencyKey struct {
	Key       string `gorm:"type:varchar(128);primaryKey"`
	Method    string `gorm:"type:varchar(8);not null"`
	Path      string `gorm:"type:varchar(255);not null"`
	Status    int    `gorm:"not null"`
	Body      []byte
	CreatedAt time.Time
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&Account{},
		&Transaction{},
		&GatewaySession{},
		&Order{},
		&OrderItem{},
		&Payment{},
		&IdempotencyKey{},
	}
}
