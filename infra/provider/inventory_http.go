package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/amirasaad/retailpay/pkg/domain"
	"github.com/amirasaad/retailpay/pkg/provider"
	"github.com/go-resty/resty/v2"
)

// InventoryHTTPClient talks to the inventory service:
//
//	GET  /stock?product_id=&branch_id=&quantity=  -> {"available": bool}
//	POST /stock/decrement                         -> 2xx, 409 when the order line was already applied
type InventoryHTTPClient struct {
	client *resty.Client
	logger *slog.Logger
}

type stockResponse struct {
	Available bool `json:"available"`
}

type decrementRequest struct {
	ProductID string `json:"product_id"`
	BranchID  string `json:"branch_id"`
	Quantity  int    `json:"quantity"`
	OrderRef  string `json:"order_ref"`
}

// NewInventoryHTTPClient creates an inventory client.
func NewInventoryHTTPClient(cfg HTTPConfig, logger *slog.Logger) *InventoryHTTPClient {
	c := newRestyClient(cfg)
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}
	return &InventoryHTTPClient{client: c, logger: logger.With("provider", "inventory")}
}

// CheckStock implements provider.InventoryClient.
func (c *InventoryHTTPClient) CheckStock(ctx context.Context, productID, branchID string, quantity int) (bool, error) {
	var out stockResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"product_id": productID,
			"branch_id":  branchID,
			"quantity":   strconv.Itoa(quantity),
		}).
		SetResult(&out).
		Get("/stock")
	if err := classify("inventory check", resp, err); err != nil {
		c.logger.Warn("stock check failed", "product_id", productID, "branch_id", branchID, "error", err)
		return false, err
	}
	return out.Available, nil
}

// Decrement implements provider.InventoryClient.
func (c *InventoryHTTPClient) Decrement(
	ctx context.Context,
	productID, branchID string,
	quantity int,
	orderRef string,
) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", fmt.Sprintf("%s:%s:%s", orderRef, branchID, productID)).
		SetBody(decrementRequest{
			ProductID: productID,
			BranchID:  branchID,
			Quantity:  quantity,
			OrderRef:  orderRef,
		}).
		Post("/stock/decrement")
	if err == nil && resp.StatusCode() == http.StatusConflict {
		c.logger.Info("🔁 [SKIP] stock already decremented", "order_ref", orderRef, "product_id", productID)
		return nil
	}
	if err == nil && resp.StatusCode() == http.StatusUnprocessableEntity {
		return fmt.Errorf("%w: product %s at branch %s", domain.ErrOutOfStock, productID, branchID)
	}
	return classify("inventory decrement", resp, err)
}

var _ provider.InventoryClient = (*InventoryHTTPClient)(nil)
