package repository

import (
	"context"
	"time"

	"github.com/amirasaad/retailpay/pkg/domain/order"
	"github.com/amirasaad/retailpay/pkg/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a gorm backed order repository.
func NewOrderRepository(db *gorm.DB) repository.OrderRepository {
	return &orderRepository{db: db}
}

// Create implements repository.OrderRepository. Items are inserted with the order.
func (r *orderRepository) Create(ctx context.Context, o *order.Order) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).Create(toOrderModel(o)).Error
	})
}

func (r *orderRepository) load(q *gorm.DB, id uuid.UUID) (*order.Order, error) {
	var m Order
	if err := q.Where("id = ?", id).Take(&m).Error; err != nil {
		return nil, notFound(err, order.ErrOrderNotFound)
	}
	var items []OrderItem
	if err := q.Session(&gorm.Session{NewDB: true}).
		Where("order_id = ?", id).
		Order("product_id").
		Find(&items).Error; err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	m.Items = items
	return toOrderDomain(&m), nil
}

// Get implements repository.OrderRepository.
func (r *orderRepository) Get(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.load(r.db.WithContext(ctx), id)
}

// GetForUpdate implements repository.OrderRepository.
func (r *orderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.load(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// Update implements repository.OrderRepository. Totals and items are
// immutable and never written here.
func (r *orderRepository) Update(ctx context.Context, o *order.Order) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Model(&Order{}).
			Where("id = ?", o.ID).
			Updates(map[string]any{
				"status":              string(o.Status),
				"inventory_triggered": o.InventoryTriggered,
				"inventory_sync":      string(o.InventorySync),
				"inventory_attempts":  o.InventoryAttempts,
				"updated_at":          time.Now().UTC(),
			}).Error
	})
}

// MarkItemDecremented implements repository.OrderRepository.
func (r *orderRepository) MarkItemDecremented(ctx context.Context, itemID uuid.UUID) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Model(&OrderItem{}).
			Where("id = ?", itemID).
			Update("inventory_decremented", true).Error
	})
}

// UpdateInventorySync implements repository.OrderRepository.
func (r *orderRepository) UpdateInventorySync(
	ctx context.Context,
	id uuid.UUID,
	sync order.InventorySync,
	attempts int,
) error {
	return WrapError(func() error {
		return r.db.WithContext(ctx).
			Model(&Order{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"inventory_sync":     string(sync),
				"inventory_attempts": attempts,
				"updated_at":         time.Now().UTC(),
			}).Error
	})
}

// ListInventoryPending implements repository.OrderRepository. It returns
// approved orders whose stock decrement has not finished.
func (r *orderRepository) ListInventoryPending(
	ctx context.Context,
	maxAttempts, limit int,
) ([]*order.Order, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&Order{}).
		Where("inventory_triggered = ?", true).
		Where("inventory_sync IN ?", []string{string(order.InventoryPending), string(order.InventoryFailed)}).
		Where("inventory_attempts < ?", maxAttempts).
		Order("updated_at").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, MapGormErrorToDomain(err)
	}
	out := make([]*order.Order, 0, len(ids))
	for _, id := range ids {
		o, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}
