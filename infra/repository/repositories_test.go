package repository

import (
	"context"
	"testing"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/domain/order"
	"github.com/amirasaad/retailpay/pkg/domain/session"
	pkgrepo "github.com/amirasaad/retailpay/pkg/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newOrder(t *testing.T) *order.Order {
	t.Helper()
	o, err := order.New(uuid.New(), "BR-1", order.DeliveryPickup, []order.LineInput{
		{ProductID: "SKU-2", Quantity: 1, UnitPrice: dec("40")},
		{ProductID: "SKU-1", Quantity: 3, UnitPrice: dec("20")},
	}, order.Pricing{Currency: "USD", SourceCurrency: "USD"})
	require.NoError(t, err)
	return o
}

func seedOrderAndPayment(t *testing.T, db *gorm.DB, method order.Method) (*order.Order, *order.Payment) {
	t.Helper()
	ctx := context.Background()
	o := newOrder(t)
	require.NoError(t, NewOrderRepository(db).Create(ctx, o))
	var source *uuid.UUID
	if method.UsesLedger() {
		id := uuid.New()
		source = &id
	}
	p, err := order.NewPayment(o.ID, method, o.Total, source)
	require.NoError(t, err)
	require.NoError(t, NewPaymentRepository(db).Create(ctx, p))
	return o, p
}

func TestOrderRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	repo := NewOrderRepository(db)
	o := newOrder(t)
	require.NoError(t, repo.Create(ctx, o))

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Code, got.Code)
	assert.True(t, o.Total.Equal(got.Total))
	require.Len(t, got.Items, 2)
	assert.Equal(t, "SKU-1", got.Items[0].ProductID)

	require.NoError(t, got.TransitionTo(order.StatusApproved))
	require.True(t, got.MarkApproved())
	require.NoError(t, repo.Update(ctx, got))
	require.NoError(t, repo.MarkItemDecremented(ctx, got.Items[0].ID))

	again, err := repo.GetForUpdate(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusApproved, again.Status)
	assert.Equal(t, order.InventoryPending, again.InventorySync)
	assert.Len(t, again.PendingItems(), 1)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOrderRepository_ListInventoryPending(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	repo := NewOrderRepository(db)

	pending := newOrder(t)
	pending.Status = order.StatusApproved
	pending.MarkApproved()
	exhausted := newOrder(t)
	exhausted.Status = order.StatusApproved
	exhausted.MarkApproved()
	untouched := newOrder(t)
	for _, o := range []*order.Order{pending, exhausted, untouched} {
		require.NoError(t, repo.Create(ctx, o))
	}
	require.NoError(t, repo.UpdateInventorySync(ctx, exhausted.ID, order.InventoryFailed, 5))

	got, err := repo.ListInventoryPending(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, pending.ID, got[0].ID)
}

func TestPaymentRepository_UpdateAndList(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	o, p := seedOrderAndPayment(t, db, order.MethodCash)
	repo := NewPaymentRepository(db)

	require.NoError(t, p.Complete("cash-desk"))
	require.NoError(t, repo.Update(ctx, p))

	got, err := repo.GetForUpdate(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentCompleted, got.Status)
	assert.Equal(t, "cash-desk", got.ProcessorRef)

	list, err := repo.ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = repo.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, order.ErrPaymentNotFound)
}

func TestSessionRepository_OneActiveSessionPerPayment(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	_, p := seedOrderAndPayment(t, db, order.MethodCredit)
	repo := NewSessionRepository(db)

	first, err := session.New(p.ID, p.Amount, "USD", "https://shop.test/return")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, first))

	second, err := session.New(p.ID, p.Amount, "USD", "")
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, second), domain.ErrConflict)

	ok, err := repo.ConfirmByToken(ctx, first.Token, session.StateFailed, "")
	require.NoError(t, err)
	require.True(t, ok)

	// A failed session frees the slot for a retry.
	require.NoError(t, repo.Create(ctx, second))
	active, err := repo.FindActiveByPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
}

func TestSessionRepository_ConfirmIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	_, p := seedOrderAndPayment(t, db, order.MethodCredit)
	repo := NewSessionRepository(db)

	s, err := session.New(p.ID, p.Amount, "USD", "")
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, s))

	ok, err := repo.ConfirmByToken(ctx, s.Token, session.StateConfirmed, "AUTH-1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.ConfirmByToken(ctx, s.Token, session.StateFailed, "")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByToken(ctx, s.Token)
	require.NoError(t, err)
	assert.Equal(t, session.StateConfirmed, got.State)
	assert.Equal(t, "AUTH-1", got.AuthCode)

	ok, err = repo.MarkVoided(ctx, s.ID, "customer request")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkVoided(ctx, s.ID, "again")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.GetByToken(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestSessionRepository_ListUnreconciled(t *testing.T) {
	ctx := context.Background()
	db := newSQLiteDB(t)
	repo := NewSessionRepository(db)
	payments := NewPaymentRepository(db)

	// confirmed session, payment still pending: needs completion
	_, p1 := seedOrderAndPayment(t, db, order.MethodCredit)
	s1, _ := session.New(p1.ID, p1.Amount, "USD", "")
	require.NoError(t, repo.Create(ctx, s1))
	_, err := repo.ConfirmByToken(ctx, s1.Token, session.StateConfirmed, "A1")
	require.NoError(t, err)

	// confirmed session, payment already completed: done
	_, p2 := seedOrderAndPayment(t, db, order.MethodCredit)
	s2, _ := session.New(p2.ID, p2.Amount, "USD", "")
	require.NoError(t, repo.Create(ctx, s2))
	_, err = repo.ConfirmByToken(ctx, s2.Token, session.StateConfirmed, "A2")
	require.NoError(t, err)
	require.NoError(t, p2.Complete("A2"))
	require.NoError(t, payments.Update(ctx, p2))

	// failed session superseded by a new initiated one: skipped
	_, p3 := seedOrderAndPayment(t, db, order.MethodCredit)
	s3, _ := session.New(p3.ID, p3.Amount, "USD", "")
	require.NoError(t, repo.Create(ctx, s3))
	_, err = repo.ConfirmByToken(ctx, s3.Token, session.StateFailed, "")
	require.NoError(t, err)
	s3b, _ := session.New(p3.ID, p3.Amount, "USD", "")
	require.NoError(t, repo.Create(ctx, s3b))

	got, err := repo.ListUnreconciled(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, s1.ID, got[0].ID)
}

func TestIdempotencyRepository_FirstWriteWins(t *testing.T) {
	ctx := context.Background()
	repo := NewIdempotencyRepository(newSQLiteDB(t))

	rec, err := repo.Get(ctx, "k-1")
	require.NoError(t, err)
	assert.Nil(t, rec)

	now := time.Now().UTC()
	require.NoError(t, repo.Save(ctx, &pkgrepo.IdempotencyRecord{
		Key: "k-1", Method: "POST", Path: "/orders", Status: 201, Body: []byte(`{"a":1}`), CreatedAt: now,
	}))
	require.NoError(t, repo.Save(ctx, &pkgrepo.IdempotencyRecord{
		Key: "k-1", Method: "POST", Path: "/orders", Status: 500, Body: []byte(`{}`), CreatedAt: now,
	}))

	rec, err = repo.Get(ctx, "k-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 201, rec.Status)
	assert.JSONEq(t, `{"a":1}`, string(rec.Body))
}
