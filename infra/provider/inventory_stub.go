package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/provider"
)

// StubInventory is an in-process inventory for development. Unknown
// products start at DefaultStock. Replayed decrements for the same order
// line are ignored.
type StubInventory struct {
	mu           sync.Mutex
	DefaultStock int
	stock        map[string]int
	applied      map[string]struct{}
}

// NewStubInventory creates a stub where every product starts at defaultStock.
func NewStubInventory(defaultStock int) *StubInventory {
	return &StubInventory{
		DefaultStock: defaultStock,
		stock:        make(map[string]int),
		applied:      make(map[string]struct{}),
	}
}

func stockKey(productID, branchID string) string { return branchID + "/" + productID }

// SetStock overrides the quantity on hand for one product at one branch.
func (s *StubInventory) SetStock(productID, branchID string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[stockKey(productID, branchID)] = qty
}

// Stock returns the quantity on hand.
func (s *StubInventory) Stock(productID, branchID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onHand(stockKey(productID, branchID))
}

func (s *StubInventory) onHand(key string) int {
	if q, ok := s.stock[key]; ok {
		return q
	}
	return s.DefaultStock
}

// CheckStock implements provider.InventoryClient.
func (s *StubInventory) CheckStock(_ context.Context, productID, branchID string, quantity int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onHand(stockKey(productID, branchID)) >= quantity, nil
}

// Decrement implements provider.InventoryClient.
func (s *StubInventory) Decrement(_ context.Context, productID, branchID string, quantity int, orderRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := stockKey(productID, branchID)
	ref := orderRef + "|" + key
	if _, done := s.applied[ref]; done {
		return nil
	}
	q := s.onHand(key)
	if q < quantity {
		return fmt.Errorf("%w: product %s at branch %s", domain.ErrOutOfStock, productID, branchID)
	}
	s.stock[key] = q - quantity
	s.applied[ref] = struct{}{}
	return nil
}

var _ provider.InventoryClient = (*StubInventory)(nil)
