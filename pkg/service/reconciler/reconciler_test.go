package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	infraeventbus "github.com/amirasaad/retailpay/infra/eventbus"
	infralock "github.com/amirasaad/retailpay/infra/lock"
	"github.com/amirasaad/retailpay/internal/fixtures/mocks"
	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/domain/account"
	"github.com/amirasaad/retailpay/pkg/domain/events"
	"github.com/amirasaad/retailpay/pkg/domain/order"
	"github.com/amirasaad/retailpay/pkg/domain/session"
	"github.com/amirasaad/retailpay/pkg/repository"
	"github.com/amirasaad/retailpay/pkg/service/gateway"
	"github.com/amirasaad/retailpay/pkg/service/ledger"
	"github.com/amirasaad/retailpay/pkg/testutils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const redirectBase = "https://pay.example.test/checkout"

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Equal(t, dec(want).StringFixed(2), got.StringFixed(2))
}

type fixture struct {
	rec        *Reconciler
	uow        repository.UnitOfWork
	ledger     *ledger.Service
	gateway    *gateway.Service
	bus        *infraeventbus.MemoryEventBus
	inv        *mocks.MockInventoryClient
	fx         *mocks.MockFxClient
	settlement *account.Account
}

func newFixture(t *testing.T, opts ...func(*Config)) *fixture {
	t.Helper()
	uow, _ := testutils.NewTestUoW(t)
	logger := testutils.NewLogger()
	bus := infraeventbus.NewWithMemory(logger)
	led := ledger.New(uow, 5*time.Second, logger)
	gw := gateway.New(uow, bus, redirectBase, logger)

	settlement, err := led.OpenAccount(context.Background(), ledger.OpenAccountInput{ClientID: uuid.New(), Currency: "USD"})
	require.NoError(t, err)

	cfg := Config{
		SettlementAccountID:  settlement.ID,
		SettlementCurrency:   "USD",
		TaxRate:              decimal.Zero,
		ShippingFee:          decimal.Zero,
		CollaboratorTimeout:  time.Second,
		MaxInventoryAttempts: 3,
	}
	for _, o := range opts {
		o(&cfg)
	}
	f := &fixture{
		uow:        uow,
		ledger:     led,
		gateway:    gw,
		bus:        bus,
		inv:        new(mocks.MockInventoryClient),
		fx:         new(mocks.MockFxClient),
		settlement: settlement,
	}
	f.rec = New(Deps{
		Uow:       uow,
		Ledger:    led,
		Gateway:   gw,
		Inventory: f.inv,
		Fx:        f.fx,
		Locker:    infralock.NewMemoryLocker(),
		Bus:       bus,
		Logger:    logger,
	}, cfg)
	f.rec.Subscribe(bus)
	return f
}

func (f *fixture) stockOK() {
	f.inv.On("CheckStock", mock.Anything, mock.Anything, "BR-1", mock.Anything).Return(true, nil)
}

func (f *fixture) decrementOK() {
	f.inv.On("Decrement", mock.Anything, mock.Anything, "BR-1", mock.Anything, mock.AnythingOfType("string")).Return(nil)
}

func (f *fixture) account(t *testing.T, balance string) *account.Account {
	t.Helper()
	ctx := context.Background()
	a, err := f.ledger.OpenAccount(ctx, ledger.OpenAccountInput{ClientID: uuid.New(), Currency: "USD"})
	require.NoError(t, err)
	if b := dec(balance); b.IsPositive() {
		_, err = f.ledger.Deposit(ctx, a.ID, b, "opening balance")
		require.NoError(t, err)
	}
	return a
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	a, err := f.ledger.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

// tenThousand is an order of 2 x 5000 with no tax or shipping.
func tenThousand(pay PaymentInput) CreateOrderInput {
	return CreateOrderInput{
		ClientID:       uuid.New(),
		BranchID:       "BR-1",
		DeliveryMethod: order.DeliveryPickup,
		Items:          []order.LineInput{{ProductID: "SKU-1", Quantity: 2, UnitPrice: dec("5000")}},
		Payment:        pay,
	}
}

func TestReconciler_CreateOrderWithDebit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()
	f.decrementOK()
	client := f.account(t, "25000")

	res, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodDebit, SourceAccountID: &client.ID}))
	require.NoError(t, err)

	assert.Equal(t, order.StatusApproved, res.Order.Status)
	assert.Equal(t, order.PaymentCompleted, res.Payment.Status)
	assert.NotEmpty(t, res.Payment.ProcessorRef)
	assertAmount(t, "10000", res.Order.Total)
	assertAmount(t, "15000", f.balance(t, client.ID))

	view, err := f.rec.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.True(t, view.Order.InventoryTriggered)
	assert.Equal(t, order.InventorySynced, view.Order.InventorySync)
	f.inv.AssertCalled(t, "Decrement", mock.Anything, "SKU-1", "BR-1", 2, res.Order.Code)
	f.inv.AssertNumberOfCalls(t, "Decrement", 1)
}

func TestReconciler_CreateOrderWithDebitInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()
	client := f.account(t, "100")

	res, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodDebit, SourceAccountID: &client.ID}))
	require.NoError(t, err)

	assert.Equal(t, order.PaymentRejected, res.Payment.Status)
	assert.Contains(t, res.Payment.FailureReason, "insufficient funds")
	assert.Equal(t, order.StatusRejected, res.Order.Status)
	assertAmount(t, "100", f.balance(t, client.ID))
	f.inv.AssertNotCalled(t, "Decrement", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_CreateOrderWithTransfer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()
	f.decrementOK()
	client := f.account(t, "10000")

	res, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodTransfer, SourceAccountID: &client.ID}))
	require.NoError(t, err)
	assert.Equal(t, order.StatusApproved, res.Order.Status)
	assertAmount(t, "0", f.balance(t, client.ID))
	assertAmount(t, "10000", f.balance(t, f.settlement.ID))
}

func TestReconciler_CreateOrderCollaboratorFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("out of stock", func(t *testing.T) {
		f := newFixture(t)
		f.inv.On("CheckStock", mock.Anything, "SKU-1", "BR-1", 2).Return(false, nil)
		_, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodCash}))
		assert.ErrorIs(t, err, domain.ErrOutOfStock)
		assert.False(t, domain.IsRetryable(err))
	})

	t.Run("inventory unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.inv.On("CheckStock", mock.Anything, "SKU-1", "BR-1", 2).Return(false, errors.New("connection refused"))
		_, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodCash}))
		assert.ErrorIs(t, err, domain.ErrUnavailable)
		assert.True(t, domain.IsRetryable(err))
	})

	t.Run("fx timeout", func(t *testing.T) {
		f := newFixture(t)
		f.stockOK()
		f.fx.On("Convert", mock.Anything, mock.Anything, "EUR", "USD").Return(nil, context.DeadlineExceeded)
		in := tenThousand(PaymentInput{Method: order.MethodCash})
		in.Currency = "EUR"
		_, err := f.rec.CreateOrder(ctx, in)
		assert.ErrorIs(t, err, domain.ErrTimeout)
	})
}

func TestReconciler_CreateOrderValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	src := uuid.New()
	cases := []struct {
		name string
		in   CreateOrderInput
	}{
		{"unknown method", tenThousand(PaymentInput{Method: "cheque"})},
		{"credit without return url", tenThousand(PaymentInput{Method: order.MethodCredit})},
		{"debit without source", tenThousand(PaymentInput{Method: order.MethodDebit})},
		{"no items", func() CreateOrderInput {
			in := tenThousand(PaymentInput{Method: order.MethodCash})
			in.Items = nil
			return in
		}()},
		{"bad delivery", func() CreateOrderInput {
			in := tenThousand(PaymentInput{Method: order.MethodCash})
			in.DeliveryMethod = "drone"
			return in
		}()},
		{"amount above total", tenThousand(PaymentInput{Method: order.MethodDebit, SourceAccountID: &src, Amount: dec("10000.01")})},
	}
	f.stockOK()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.rec.CreateOrder(ctx, tc.in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestReconciler_ConvertsPricesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()
	f.fx.On("Convert", mock.Anything, mock.Anything, "EUR", "USD").Return(dec("1.085"), nil).Once()

	in := CreateOrderInput{
		ClientID:       uuid.New(),
		BranchID:       "BR-1",
		Currency:       "eur",
		DeliveryMethod: order.DeliveryPickup,
		Items: []order.LineInput{
			{ProductID: "SKU-1", Quantity: 1, UnitPrice: dec("10.00")},
			{ProductID: "SKU-2", Quantity: 3, UnitPrice: dec("2.50")},
		},
		Payment: PaymentInput{Method: order.MethodCash},
	}
	res, err := f.rec.CreateOrder(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, "USD", res.Order.Currency)
	assert.Equal(t, "EUR", res.Order.SourceCurrency)
	// 10.85 + 3 x 2.71
	assertAmount(t, "18.98", res.Order.Total)
	assert.Equal(t, order.StatusPending, res.Order.Status)
	assert.Equal(t, order.PaymentPending, res.Payment.Status)
	f.fx.AssertNumberOfCalls(t, "Convert", 1)
}

func TestReconciler_OrderStatusDerivation(t *testing.T) {
	ctx := context.Background()

	t.Run("partial then full", func(t *testing.T) {
		f := newFixture(t)
		f.stockOK()
		f.decrementOK()

		res, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodCash, Amount: dec("4000")}))
		require.NoError(t, err)
		o, err := f.rec.ConfirmCashPayment(ctx, res.Payment.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusPartiallyPaid, o.Status)
		f.inv.AssertNotCalled(t, "Decrement", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

		_, err = f.rec.AddPayment(ctx, o.ID, PaymentInput{Method: order.MethodCash, Amount: dec("6000.01")})
		assert.ErrorIs(t, err, order.ErrAmountExceedsOutstanding)

		second, err := f.rec.AddPayment(ctx, o.ID, PaymentInput{Method: order.MethodCash})
		require.NoError(t, err)
		assertAmount(t, "6000", second.Payment.Amount)
		o, err = f.rec.ConfirmCashPayment(ctx, second.Payment.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusApproved, o.Status)
		f.inv.AssertNumberOfCalls(t, "Decrement", 1)

		_, err = f.rec.AddPayment(ctx, o.ID, PaymentInput{Method: order.MethodCash, Amount: dec("1")})
		assert.ErrorIs(t, err, domain.ErrInvalidState)
	})

	t.Run("paid at once", func(t *testing.T) {
		f := newFixture(t)
		f.stockOK()
		f.decrementOK()
		res, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodCash}))
		require.NoError(t, err)
		o, err := f.rec.ConfirmCashPayment(ctx, res.Payment.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusApproved, o.Status)
	})
}

func TestReconciler_CardFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()
	f.decrementOK()

	res, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{
		Method:    order.MethodCredit,
		ReturnURL: "https://shop.example.test/return",
	}))
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, res.Order.Status)
	require.NotNil(t, res.Session)
	assert.Equal(t, redirectBase+"/"+res.Session.Token, res.RedirectURL)

	_, err = f.gateway.Confirm(ctx, res.Session.Token, false, "")
	require.NoError(t, err)
	view, err := f.rec.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusRejected, view.Order.Status)
	assert.Equal(t, order.PaymentRejected, view.Payments[0].Status)

	retry, err := f.rec.AddPayment(ctx, res.Order.ID, PaymentInput{
		Method:    order.MethodCredit,
		ReturnURL: "https://shop.example.test/return",
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, retry.Order.Status)

	_, err = f.gateway.Confirm(ctx, retry.Session.Token, true, "AUTH-OK")
	require.NoError(t, err)
	view, err = f.rec.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusApproved, view.Order.Status)

	p, err := f.rec.GetPayment(ctx, retry.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentCompleted, p.Status)
	assert.Equal(t, "AUTH-OK", p.ProcessorRef)
}

func TestReconciler_DuplicateCompletionDecrementsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()
	f.decrementOK()

	in := tenThousand(PaymentInput{Method: order.MethodCredit, ReturnURL: "https://shop.example.test/return"})
	in.Items = append(in.Items, order.LineInput{ProductID: "SKU-2", Quantity: 1, UnitPrice: dec("25")})
	res, err := f.rec.CreateOrder(ctx, in)
	require.NoError(t, err)

	_, err = f.gateway.Confirm(ctx, res.Session.Token, true, "AUTH-1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := f.rec.OnPaymentCompleted(ctx, res.Payment.ID, "AUTH-1")
			assert.NoError(t, err)
			assert.Equal(t, order.StatusApproved, o.Status)
		}()
	}
	wg.Wait()

	f.inv.AssertNumberOfCalls(t, "Decrement", 2)
	f.inv.AssertCalled(t, "Decrement", mock.Anything, "SKU-1", "BR-1", 2, res.Order.Code)
	f.inv.AssertCalled(t, "Decrement", mock.Anything, "SKU-2", "BR-1", 1, res.Order.Code)

	var approvals int
	for _, e := range f.bus.Published() {
		if ev, ok := e.(events.OrderStatusChanged); ok && ev.To == string(order.StatusApproved) {
			approvals++
		}
	}
	assert.Equal(t, 1, approvals)
}

func TestReconciler_OnPaymentFailedKeepsPartialPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()

	res, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodCash, Amount: dec("4000")}))
	require.NoError(t, err)
	_, err = f.rec.ConfirmCashPayment(ctx, res.Payment.ID)
	require.NoError(t, err)

	card, err := f.rec.AddPayment(ctx, res.Order.ID, PaymentInput{
		Method:    order.MethodCredit,
		ReturnURL: "https://shop.example.test/return",
	})
	require.NoError(t, err)
	assert.Equal(t, order.StatusPartiallyPaid, card.Order.Status)

	o, err := f.rec.OnPaymentFailed(ctx, card.Payment.ID, "card declined")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPartiallyPaid, o.Status)

	again, err := f.rec.OnPaymentFailed(ctx, card.Payment.ID, "card declined")
	require.NoError(t, err)
	assert.Equal(t, o.Status, again.Status)

	_, err = f.rec.ConfirmCashPayment(ctx, card.Payment.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReconciler_CancelOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()
	f.decrementOK()

	res, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodCash}))
	require.NoError(t, err)

	o, err := f.rec.CancelOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)
	p, err := f.rec.GetPayment(ctx, res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentRejected, p.Status)

	_, err = f.rec.CancelOrder(ctx, res.Order.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.rec.ConfirmCashPayment(ctx, res.Payment.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	paid, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodCash}))
	require.NoError(t, err)
	_, err = f.rec.ConfirmCashPayment(ctx, paid.Payment.ID)
	require.NoError(t, err)
	_, err = f.rec.CancelOrder(ctx, paid.Order.ID)
	assert.ErrorIs(t, err, order.ErrNotCancellable)

	_, err = f.rec.CancelOrder(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReconciler_VoidDebitPaymentDoesNotDecrementAgain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()
	f.decrementOK()
	client := f.account(t, "20000")

	res, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodDebit, SourceAccountID: &client.ID}))
	require.NoError(t, err)
	require.Equal(t, order.StatusApproved, res.Order.Status)

	p, err := f.rec.VoidPayment(ctx, res.Payment.ID, "customer changed mind")
	require.NoError(t, err)
	assert.Equal(t, order.PaymentVoided, p.Status)
	assertAmount(t, "20000", f.balance(t, client.ID))

	view, err := f.rec.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, view.Order.Status)
	assert.True(t, view.Order.InventoryTriggered)

	_, err = f.rec.VoidPayment(ctx, res.Payment.ID, "again")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	again, err := f.rec.AddPayment(ctx, res.Order.ID, PaymentInput{Method: order.MethodDebit, SourceAccountID: &client.ID})
	require.NoError(t, err)
	assert.Equal(t, order.StatusApproved, again.Order.Status)
	assertAmount(t, "10000", f.balance(t, client.ID))
	f.inv.AssertNumberOfCalls(t, "Decrement", 1)

	txs, err := f.ledger.ListTransactions(ctx, client.ID, 10, 0)
	require.NoError(t, err)
	var reversals int
	for _, tx := range txs {
		if tx.Type == account.TransactionTypeReversal {
			reversals++
		}
	}
	assert.Equal(t, 1, reversals)
}

func TestReconciler_VoidTransferPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()
	f.decrementOK()
	client := f.account(t, "4000")

	res, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{
		Method:          order.MethodTransfer,
		SourceAccountID: &client.ID,
		Amount:          dec("4000"),
	}))
	require.NoError(t, err)
	assert.Equal(t, order.StatusPartiallyPaid, res.Order.Status)
	assertAmount(t, "4000", f.balance(t, f.settlement.ID))

	_, err = f.rec.VoidPayment(ctx, res.Payment.ID, "duplicate")
	require.NoError(t, err)
	assertAmount(t, "4000", f.balance(t, client.ID))
	assertAmount(t, "0", f.balance(t, f.settlement.ID))

	view, err := f.rec.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, view.Order.Status)
}

func TestReconciler_VoidCardPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()
	f.decrementOK()

	res, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{
		Method:    order.MethodCredit,
		ReturnURL: "https://shop.example.test/return",
	}))
	require.NoError(t, err)
	_, err = f.gateway.Confirm(ctx, res.Session.Token, true, "")
	require.NoError(t, err)

	p, err := f.rec.VoidPayment(ctx, res.Payment.ID, "fraud check")
	require.NoError(t, err)
	assert.Equal(t, order.PaymentVoided, p.Status)

	sess, err := f.gateway.Get(ctx, res.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateVoided, sess.State)
	assert.Equal(t, "fraud check", sess.VoidReason)

	view, err := f.rec.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, view.Order.Status)
	f.inv.AssertNumberOfCalls(t, "Decrement", 1)
}

func TestReconciler_DeliverAndVoidOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()
	f.decrementOK()
	client := f.account(t, "30000")

	delivered, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodDebit, SourceAccountID: &client.ID}))
	require.NoError(t, err)
	o, err := f.rec.DeliverOrder(ctx, delivered.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusDelivered, o.Status)
	_, err = f.rec.VoidPayment(ctx, delivered.Payment.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.rec.VoidOrder(ctx, delivered.Order.ID, "too late")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	pending, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodCash}))
	require.NoError(t, err)
	_, err = f.rec.DeliverOrder(ctx, pending.Order.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	paid, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodDebit, SourceAccountID: &client.ID}))
	require.NoError(t, err)
	assertAmount(t, "10000", f.balance(t, client.ID))

	view, err := f.rec.VoidOrder(ctx, paid.Order.ID, "store closed")
	require.NoError(t, err)
	assert.Equal(t, order.StatusVoided, view.Order.Status)
	require.Len(t, view.Payments, 1)
	assert.Equal(t, order.PaymentVoided, view.Payments[0].Status)
	assertAmount(t, "20000", f.balance(t, client.ID))
}

func TestReconciler_VoidOrderWithOpenCardPayment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()
	f.decrementOK()

	cash, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodCash, Amount: dec("4000")}))
	require.NoError(t, err)
	_, err = f.rec.ConfirmCashPayment(ctx, cash.Payment.ID)
	require.NoError(t, err)
	card, err := f.rec.AddPayment(ctx, cash.Order.ID, PaymentInput{
		Method:    order.MethodCredit,
		ReturnURL: "https://shop.example.test/return",
	})
	require.NoError(t, err)
	require.NotNil(t, card.Session)
	assertAmount(t, "6000", card.Payment.Amount)

	_, err = f.rec.VoidOrder(ctx, cash.Order.ID, "store closed")
	require.ErrorIs(t, err, order.ErrPaymentInFlight)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	view, err := f.rec.GetOrder(ctx, cash.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPartiallyPaid, view.Order.Status)
	for _, p := range view.Payments {
		assert.NotEqual(t, order.PaymentVoided, p.Status)
	}

	// The late capture still lands on a live order and is reconciled.
	_, err = f.gateway.Confirm(ctx, card.Session.Token, true, "")
	require.NoError(t, err)
	p, err := f.rec.GetPayment(ctx, card.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentCompleted, p.Status)

	view, err = f.rec.VoidOrder(ctx, cash.Order.ID, "store closed")
	require.NoError(t, err)
	assert.Equal(t, order.StatusVoided, view.Order.Status)
	for _, p := range view.Payments {
		assert.Equal(t, order.PaymentVoided, p.Status)
	}
	sess, err := f.gateway.Get(ctx, card.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateVoided, sess.State)
}

func TestReconciler_CancelOrderClosesCardSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()

	cash, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodCash, Amount: dec("4000")}))
	require.NoError(t, err)
	_, err = f.rec.ConfirmCashPayment(ctx, cash.Payment.ID)
	require.NoError(t, err)
	card, err := f.rec.AddPayment(ctx, cash.Order.ID, PaymentInput{
		Method:    order.MethodCredit,
		ReturnURL: "https://shop.example.test/return",
	})
	require.NoError(t, err)
	require.NotNil(t, card.Session)
	_, err = f.rec.VoidPayment(ctx, cash.Payment.ID, "wrong till")
	require.NoError(t, err)

	o, err := f.rec.CancelOrder(ctx, cash.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, o.Status)

	sess, err := f.gateway.Get(ctx, card.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateFailed, sess.State)

	_, err = f.gateway.Confirm(ctx, card.Session.Token, true, "")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	p, err := f.rec.GetPayment(ctx, card.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentRejected, p.Status)
	f.inv.AssertNotCalled(t, "Decrement", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_InventoryFailureKeepsApproval(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()
	f.inv.On("Decrement", mock.Anything, "SKU-1", "BR-1", 2, mock.AnythingOfType("string")).
		Return(domain.ErrUnavailable).Once()
	f.inv.On("Decrement", mock.Anything, "SKU-1", "BR-1", 2, mock.AnythingOfType("string")).
		Return(nil).Once()
	client := f.account(t, "10000")

	res, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodDebit, SourceAccountID: &client.ID}))
	require.NoError(t, err)
	assert.Equal(t, order.StatusApproved, res.Order.Status)

	view, err := f.rec.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusApproved, view.Order.Status)
	assert.Equal(t, order.InventoryFailed, view.Order.InventorySync)
	assert.Equal(t, 1, view.Order.InventoryAttempts)

	var failed []events.InventorySyncFailed
	for _, e := range f.bus.Published() {
		if ev, ok := e.(events.InventorySyncFailed); ok {
			failed = append(failed, ev)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, res.Order.Code, failed[0].OrderCode)

	n, err := f.rec.RetryInventorySync(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	view, err = f.rec.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.InventorySynced, view.Order.InventorySync)
	assert.True(t, view.Order.Items[0].InventoryDecremented)

	n, err = f.rec.RetryInventorySync(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
	f.inv.AssertNumberOfCalls(t, "Decrement", 2)
}

func TestReconciler_InventoryManualReview(t *testing.T) {
	ctx := context.Background()

	t.Run("non retryable", func(t *testing.T) {
		f := newFixture(t)
		f.stockOK()
		f.inv.On("Decrement", mock.Anything, mock.Anything, "BR-1", mock.Anything, mock.Anything).
			Return(domain.ErrOutOfStock)
		res, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodCash}))
		require.NoError(t, err)
		o, err := f.rec.ConfirmCashPayment(ctx, res.Payment.ID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusApproved, o.Status)
		assert.Equal(t, order.InventoryManualReview, o.InventorySync)
	})

	t.Run("attempts exhausted", func(t *testing.T) {
		f := newFixture(t, func(c *Config) { c.MaxInventoryAttempts = 2 })
		f.stockOK()
		f.inv.On("Decrement", mock.Anything, mock.Anything, "BR-1", mock.Anything, mock.Anything).
			Return(domain.ErrTimeout)
		res, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{Method: order.MethodCash}))
		require.NoError(t, err)
		_, err = f.rec.ConfirmCashPayment(ctx, res.Payment.ID)
		require.NoError(t, err)

		n, err := f.rec.RetryInventorySync(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		view, err := f.rec.GetOrder(ctx, res.Order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.InventoryManualReview, view.Order.InventorySync)
		assert.Equal(t, 2, view.Order.InventoryAttempts)
		assert.Equal(t, order.StatusApproved, view.Order.Status)

		n, err = f.rec.RetryInventorySync(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestReconciler_ReconcileSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.stockOK()
	f.decrementOK()

	res, err := f.rec.CreateOrder(ctx, tenThousand(PaymentInput{
		Method:    order.MethodCredit,
		ReturnURL: "https://shop.example.test/return",
	}))
	require.NoError(t, err)

	// a gateway with no subscribers stands in for a lost event
	detached := gateway.New(f.uow, nil, redirectBase, testutils.NewLogger())
	_, err = detached.Confirm(ctx, res.Session.Token, true, "AUTH-LATE")
	require.NoError(t, err)

	p, err := f.rec.GetPayment(ctx, res.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPending, p.Status)

	n, err := f.rec.ReconcileSessions(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	view, err := f.rec.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusApproved, view.Order.Status)
	assert.Equal(t, "AUTH-LATE", view.Payments[0].ProcessorRef)

	n, err = f.rec.ReconcileSessions(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}
