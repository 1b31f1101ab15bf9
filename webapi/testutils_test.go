package webapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	infraeventbus "github.com/amirasaad/retailpay/infra/eventbus"
	infralock "github.com/amirasaad/retailpay/infra/lock"
	infraprovider "github.com/amirasaad/retailpay/infra/provider"
	"github.com/amirasaad/retailpay/pkg/app"
	"github.com/amirasaad/retailpay/pkg/config"
	"github.com/amirasaad/retailpay/pkg/testutils"
	"github.com/amirasaad/retailpay/webapi"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testStock = 10

func testConfig() *config.App {
	return &config.App{
		Env:       "test",
		RateLimit: &config.RateLimit{MaxRequests: 1000, Window: time.Minute},
		Gateway:   &config.Gateway{RedirectBase: "http://localhost:3000/gateway/checkout"},
		Settlement: &config.Settlement{
			AccountID: uuid.New(),
			ClientID:  uuid.New(),
			Currency:  "USD",
		},
		Order: &config.Order{
			TaxRate:             decimal.Zero,
			ShippingFee:         decimal.Zero,
			CollaboratorTimeout: time.Second,
			LedgerTimeout:       5 * time.Second,
		},
		Worker: &config.Worker{Interval: time.Minute, BatchSize: 10, MaxAttempts: 3},
	}
}

type testEnv struct {
	app       *app.App
	fiber     *fiber.App
	inventory *infraprovider.StubInventory
}

func newTestEnv(t *testing.T, cfg *config.App) *testEnv {
	t.Helper()
	uow, _ := testutils.NewTestUoW(t)
	logger := testutils.NewLogger()
	inv := infraprovider.NewStubInventory(testStock)
	a := app.New(&app.Deps{
		Uow:       uow,
		Inventory: inv,
		Fx:        infraprovider.NewConverter(infraprovider.DefaultFixedRates(), nil, 0, logger),
		Locker:    infralock.NewMemoryLocker(),
		EventBus:  infraeventbus.NewWithMemory(logger),
		Logger:    logger,
	}, cfg)
	require.NoError(t, a.EnsureSettlementAccount(t.Context()))
	return &testEnv{app: a, fiber: webapi.SetupApp(a), inventory: inv}
}

// request sends body as JSON (when non-nil) and returns the response with
// its body read.
func (e *testEnv) request(t *testing.T, method, path string, body any, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := e.fiber.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint: errcheck
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
	Errors []struct {
		Field string `json:"field"`
		Rule  string `json:"rule"`
	} `json:"errors"`
}

func decodeData[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out), string(raw))
	return out
}

func decodeProblem(t *testing.T, raw []byte) problem {
	t.Helper()
	var p problem
	require.NoError(t, json.Unmarshal(raw, &p), string(raw))
	return p
}
