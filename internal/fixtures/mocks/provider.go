// Package mocks holds testify mocks for the external collaborators.
package mocks

import (
	"context"

	"github.com/amirasaad/retailpay/pkg/provider"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockInventoryClient is a mock implementation of provider.InventoryClient.
type MockInventoryClient struct {
	mock.Mock
}

func (m *MockInventoryClient) CheckStock(ctx context.Context, productID, branchID string, quantity int) (bool, error) {
	args := m.Called(ctx, productID, branchID, quantity)
	return args.Bool(0), args.Error(1)
}

func (m *MockInventoryClient) Decrement(
	ctx context.Context,
	productID, branchID string,
	quantity int,
	orderRef string,
) error {
	args := m.Called(ctx, productID, branchID, quantity, orderRef)
	return args.Error(0)
}

// MockFxClient is a mock implementation of provider.FxClient.
type MockFxClient struct {
	mock.Mock
}

func (m *MockFxClient) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	args := m.Called(ctx, amount, from, to)
	if args.Get(0) == nil {
		return decimal.Zero, args.Error(1)
	}
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockRateSource is a mock implementation of provider.RateSource.
type MockRateSource struct {
	mock.Mock
}

func (m *MockRateSource) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return decimal.Zero, args.Error(1)
	}
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockRateSource) Name() string {
	return m.Called().String(0)
}

var (
	_ provider.InventoryClient = (*MockInventoryClient)(nil)
	_ provider.FxClient        = (*MockFxClient)(nil)
	_ provider.RateSource      = (*MockRateSource)(nil)
)
