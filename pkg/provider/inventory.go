package provider

import "context"

// InventoryClient is the external stock service. Products and branches are
// owned there and referenced here only by id.
type InventoryClient interface {
	CheckStock(ctx context.Context, productID, branchID string, quantity int) (bool, error)
	// Decrement removes quantity from stock. orderRef lets the service
	// de-duplicate replays of the same order line.
	Decrement(ctx context.Context, productID, branchID string, quantity int, orderRef string) error
}
