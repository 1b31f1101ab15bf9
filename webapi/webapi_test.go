package webapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain/order"
	accountweb "github.com/amirasaad/retailpay/webapi/account"
	gatewayweb "github.com/amirasaad/retailpay/webapi/gateway"
	ordersweb "github.com/amirasaad/retailpay/webapi/orders"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type APITestSuite struct {
	suite.Suite
	env *testEnv
}

func (s *APITestSuite) SetupTest() {
	s.env = newTestEnv(s.T(), testConfig())
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func (s *APITestSuite) openFundedAccount(amount string) accountweb.AccountDTO {
	t := s.T()
	resp, raw := s.env.request(t, fiber.MethodPost, "/accounts", map[string]any{
		"client_id": uuid.NewString(),
		"currency":  "usd",
	})
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode, string(raw))
	acc := decodeData[accountweb.AccountDTO](t, raw)
	s.Equal("USD", acc.Currency)

	resp, raw = s.env.request(t, fiber.MethodPost, "/accounts/"+acc.ID.String()+"/deposit", map[string]any{
		"amount": amount,
	})
	s.Require().Equal(fiber.StatusOK, resp.StatusCode, string(raw))
	return acc
}

func (s *APITestSuite) TestHealth() {
	resp, raw := s.env.request(s.T(), fiber.MethodGet, "/", nil)
	s.Equal(fiber.StatusOK, resp.StatusCode)
	s.Contains(string(raw), "RetailPay API is running")
}

func (s *APITestSuite) TestAccountLifecycle() {
	t := s.T()
	acc := s.openFundedAccount("100")

	resp, raw := s.env.request(t, fiber.MethodPost, "/accounts/"+acc.ID.String()+"/withdraw", map[string]any{
		"amount": "150",
	})
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	s.Equal("application/problem+json", resp.Header.Get(fiber.HeaderContentType))
	p := decodeProblem(t, raw)
	s.Equal("insufficient_funds", p.Kind)
	s.Equal("urn:retailpay:problem:insufficient_funds", p.Type)

	resp, raw = s.env.request(t, fiber.MethodGet, "/accounts/"+acc.ID.String(), nil)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	got := decodeData[accountweb.AccountDTO](t, raw)
	s.Equal("100", got.Balance.String())

	resp, raw = s.env.request(t, fiber.MethodGet, "/accounts/"+acc.ID.String()+"/transactions?limit=10", nil)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	txs := decodeData[[]accountweb.TransactionDTO](t, raw)
	s.Len(txs, 1)

	resp, _ = s.env.request(t, fiber.MethodPost, "/accounts/"+acc.ID.String()+"/close", nil)
	s.Equal(fiber.StatusConflict, resp.StatusCode)

	resp, raw = s.env.request(t, fiber.MethodPost, "/accounts/"+acc.ID.String()+"/block", nil)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Equal("blocked", decodeData[accountweb.AccountDTO](t, raw).Status)
}

func (s *APITestSuite) TestTransfer() {
	t := s.T()
	from := s.openFundedAccount("80")
	to := s.openFundedAccount("0.01")

	resp, raw := s.env.request(t, fiber.MethodPost, "/transfers", map[string]any{
		"from_id": from.ID,
		"to_id":   to.ID,
		"amount":  "30",
	})
	s.Require().Equal(fiber.StatusOK, resp.StatusCode, string(raw))
	tr := decodeData[accountweb.TransferDTO](t, raw)
	s.Equal("50", tr.Out.BalanceAfter.String())
	s.Equal("30.01", tr.In.BalanceAfter.String())

	resp, raw = s.env.request(t, fiber.MethodPost, "/transfers", map[string]any{
		"from_id": from.ID,
		"to_id":   from.ID,
		"amount":  "1",
	})
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	p := decodeProblem(t, raw)
	s.Equal("validation", p.Kind)
	s.Require().NotEmpty(p.Errors)
	s.Equal("ToID", p.Errors[0].Field)
}

func (s *APITestSuite) TestInvalidInput() {
	t := s.T()
	resp, raw := s.env.request(t, fiber.MethodGet, "/accounts/not-a-uuid", nil)
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	s.Equal("validation", decodeProblem(t, raw).Kind)

	resp, _ = s.env.request(t, fiber.MethodGet, "/orders/"+uuid.NewString(), nil)
	s.Equal(fiber.StatusNotFound, resp.StatusCode)

	resp, raw = s.env.request(t, fiber.MethodPost, "/orders", map[string]any{
		"client_id":       uuid.NewString(),
		"branch_id":       "BR-1",
		"delivery_method": "drone",
		"items":           []map[string]any{},
		"payment":         map[string]any{"method": "cash"},
	})
	s.Equal(fiber.StatusBadRequest, resp.StatusCode)
	fields := map[string]bool{}
	for _, e := range decodeProblem(t, raw).Errors {
		fields[e.Field] = true
	}
	s.True(fields["DeliveryMethod"])
	s.True(fields["Items"])
}

func (s *APITestSuite) orderBody(payment map[string]any) map[string]any {
	return map[string]any{
		"client_id":       uuid.NewString(),
		"branch_id":       "BR-1",
		"delivery_method": "pickup",
		"items": []map[string]any{
			{"product_id": "SKU-1", "quantity": 2, "unit_price": "25"},
		},
		"payment": payment,
	}
}

func (s *APITestSuite) TestDebitOrderIsApproved() {
	t := s.T()
	acc := s.openFundedAccount("100")

	resp, raw := s.env.request(t, fiber.MethodPost, "/orders", s.orderBody(map[string]any{
		"method":            "debit",
		"source_account_id": acc.ID,
	}))
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode, string(raw))
	res := decodeData[ordersweb.PaymentResultDTO](t, raw)
	s.Equal(string(order.StatusApproved), res.Order.Status)
	s.Equal(string(order.PaymentCompleted), res.Payment.Status)
	s.Equal("50", res.Order.Total.String())
	s.Nil(res.Session)
	s.Equal(testStock-2, s.env.inventory.Stock("SKU-1", "BR-1"))

	resp, raw = s.env.request(t, fiber.MethodGet, "/accounts/"+acc.ID.String(), nil)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Equal("50", decodeData[accountweb.AccountDTO](t, raw).Balance.String())

	resp, raw = s.env.request(t, fiber.MethodPost, "/orders/"+res.Order.ID.String()+"/deliver", nil)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode, string(raw))
	s.Equal(string(order.StatusDelivered), decodeData[ordersweb.OrderDTO](t, raw).Status)
}

func (s *APITestSuite) TestDebitOrderInsufficientFundsIsRejected() {
	t := s.T()
	acc := s.openFundedAccount("10")

	resp, raw := s.env.request(t, fiber.MethodPost, "/orders", s.orderBody(map[string]any{
		"method":            "debit",
		"source_account_id": acc.ID,
	}))
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode, string(raw))
	res := decodeData[ordersweb.PaymentResultDTO](t, raw)
	s.Equal(string(order.PaymentRejected), res.Payment.Status)
	s.Equal(string(order.StatusRejected), res.Order.Status)
	s.Equal(testStock, s.env.inventory.Stock("SKU-1", "BR-1"))
}

func (s *APITestSuite) TestCashOrderPartialPayments() {
	t := s.T()
	resp, raw := s.env.request(t, fiber.MethodPost, "/orders", s.orderBody(map[string]any{
		"method": "cash",
		"amount": "20",
	}))
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode, string(raw))
	first := decodeData[ordersweb.PaymentResultDTO](t, raw)
	s.Equal(string(order.PaymentPending), first.Payment.Status)

	resp, raw = s.env.request(t, fiber.MethodPost, "/payments/"+first.Payment.ID.String()+"/cash", nil)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode, string(raw))
	s.Equal(string(order.StatusPartiallyPaid), decodeData[ordersweb.OrderDTO](t, raw).Status)

	orderPath := "/orders/" + first.Order.ID.String()
	resp, raw = s.env.request(t, fiber.MethodPost, orderPath+"/payments", map[string]any{"method": "cash"})
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode, string(raw))
	second := decodeData[ordersweb.PaymentResultDTO](t, raw)
	s.Equal("30", second.Payment.Amount.String())

	resp, raw = s.env.request(t, fiber.MethodPost, "/payments/"+second.Payment.ID.String()+"/cash", nil)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode, string(raw))
	s.Equal(string(order.StatusApproved), decodeData[ordersweb.OrderDTO](t, raw).Status)

	resp, raw = s.env.request(t, fiber.MethodGet, orderPath, nil)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	view := decodeData[ordersweb.OrderDTO](t, raw)
	s.Len(view.Payments, 2)
	s.Equal(string(order.InventorySynced), view.InventorySync)

	resp, _ = s.env.request(t, fiber.MethodPost, orderPath+"/cancel", nil)
	s.Equal(fiber.StatusConflict, resp.StatusCode)
}

func (s *APITestSuite) TestCardOrderThroughGateway() {
	t := s.T()
	resp, raw := s.env.request(t, fiber.MethodPost, "/orders", s.orderBody(map[string]any{
		"method":     "credit",
		"return_url": "https://shop.example.test/return",
	}))
	s.Require().Equal(fiber.StatusCreated, resp.StatusCode, string(raw))
	res := decodeData[ordersweb.PaymentResultDTO](t, raw)
	s.Equal(string(order.StatusProcessing), res.Order.Status)
	s.Require().NotNil(res.Session)
	s.NotEmpty(res.RedirectURL)

	resp, raw = s.env.request(t, fiber.MethodGet, "/gateway/checkout/"+res.Session.Token, nil)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode, string(raw))
	s.Equal("initiated", decodeData[gatewayweb.SessionDTO](t, raw).State)

	resp, raw = s.env.request(t, fiber.MethodPost, "/gateway/sessions/"+res.Session.Token+"/confirm", map[string]any{
		"approved":  true,
		"auth_code": "AUTH-1",
	})
	s.Require().Equal(fiber.StatusOK, resp.StatusCode, string(raw))

	resp, raw = s.env.request(t, fiber.MethodGet, "/orders/"+res.Order.ID.String(), nil)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	s.Equal(string(order.StatusApproved), decodeData[ordersweb.OrderDTO](t, raw).Status)

	resp, raw = s.env.request(t, fiber.MethodGet, "/payments/"+res.Payment.ID.String(), nil)
	s.Require().Equal(fiber.StatusOK, resp.StatusCode)
	p := decodeData[ordersweb.PaymentDTO](t, raw)
	s.Equal(string(order.PaymentCompleted), p.Status)
	s.Equal("AUTH-1", p.ProcessorRef)

	resp, raw = s.env.request(t, fiber.MethodPost, "/payments/"+res.Payment.ID.String()+"/void", map[string]any{
		"reason": "customer changed mind",
	})
	s.Require().Equal(fiber.StatusOK, resp.StatusCode, string(raw))
	s.Equal(string(order.PaymentVoided), decodeData[ordersweb.PaymentDTO](t, raw).Status)
}

func (s *APITestSuite) TestIdempotentCreate() {
	t := s.T()
	body := map[string]any{"client_id": uuid.NewString(), "currency": "USD"}

	first, raw1 := s.env.request(t, fiber.MethodPost, "/accounts", body, "Idempotency-Key", "open-1")
	s.Require().Equal(fiber.StatusCreated, first.StatusCode)
	second, raw2 := s.env.request(t, fiber.MethodPost, "/accounts", body, "Idempotency-Key", "open-1")
	s.Require().Equal(fiber.StatusCreated, second.StatusCode)

	s.Equal("true", second.Header.Get("Idempotent-Replayed"))
	s.Equal(decodeData[accountweb.AccountDTO](t, raw1).ID, decodeData[accountweb.AccountDTO](t, raw2).ID)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.MaxRequests = 3
	cfg.RateLimit.Window = time.Minute
	env := newTestEnv(t, cfg)

	for i := range 3 {
		resp, _ := env.request(t, fiber.MethodGet, "/", nil, "X-Forwarded-For", "10.0.0.1, 172.16.0.1")
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, "request %d", i+1)
	}
	resp, raw := env.request(t, fiber.MethodGet, "/", nil, "X-Forwarded-For", "10.0.0.1")
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "Too Many Requests", decodeProblem(t, raw).Title)

	resp, _ = env.request(t, fiber.MethodGet, "/", nil, "X-Forwarded-For", "10.0.0.2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDebugRoutes(t *testing.T) {
	env := newTestEnv(t, testConfig())
	resp, raw := env.request(t, fiber.MethodGet, "/debug/routes", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "/orders/:id/payments")
	assert.Contains(t, string(raw), "/gateway/checkout/:token")
}
